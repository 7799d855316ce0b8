package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/internal/config"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/internal/observability"
	"github.com/signalsfoundry/meteor-showers/update"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(good, catalog.DefaultCatalog(), 0o644); err != nil {
		t.Fatalf("write good: %v", err)
	}
	if err := os.WriteFile(bad, []byte(`{"version": "1.0.0", "showers": {"X": {"ra": "north"}}}`), 0o644); err != nil {
		t.Fatalf("write bad: %v", err)
	}

	out, err := execute(t, "validate", good)
	if err != nil {
		t.Fatalf("validate good: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok (version 1.0.0, 10 showers)") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = execute(t, "validate", good, bad)
	if err == nil {
		t.Fatalf("validate with a bad catalog should fail:\n%s", out)
	}
	if !strings.Contains(out, bad+":") {
		t.Fatalf("bad catalog not reported: %q", out)
	}
}

func TestQueryCommandJSON(t *testing.T) {
	out, err := execute(t, "query", "--data-dir", t.TempDir(), "--at", "2025-08-12T00:00:00Z", "--json")
	if err != nil {
		t.Fatalf("query: %v\n%s", err, out)
	}
	var body struct {
		Version string `json:"version"`
		Active  []struct {
			ID  string  `json:"id"`
			ZHR float64 `json:"zhr"`
		} `json:"active"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if body.Version != "1.0.0" || len(body.Active) != 2 || body.Active[0].ID != "PER" || body.Active[0].ZHR != 100 {
		t.Fatalf("query result = %+v", body)
	}
}

func TestQueryCommandTable(t *testing.T) {
	out, err := execute(t, "query", "--data-dir", t.TempDir(), "--at", "2025-03-01T00:00:00Z")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, "no showers active") {
		t.Fatalf("expected an empty result on Mar 1, got %q", out)
	}

	if _, err := execute(t, "query", "--at", "soon"); err == nil {
		t.Fatalf("invalid --at should fail")
	}
}

func TestBuildRuntimeInstallsCatalog(t *testing.T) {
	dir := t.TempDir()
	v := viper.New()
	v.Set("data_dir", dir)
	v.Set("watch_catalog", false)
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	rt, err := buildRuntime(context.Background(), cfg, logging.Noop(), nil, time.Date(2025, 12, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "showers.json")); err != nil {
		t.Fatalf("catalog not installed: %v", err)
	}
	if rt.store.Version() != "1.0.0" {
		t.Fatalf("version = %q", rt.store.Version())
	}
	active := rt.engine.ActiveInfo()
	if len(active) != 1 || active[0].ShowerID != "GEM" {
		t.Fatalf("active on Dec 14 = %+v", active)
	}
	if !rt.engine.ShowMeteors() {
		t.Fatalf("meteors should be shown by default")
	}
}

func TestUpdateCommandInstallsNewVersion(t *testing.T) {
	remote := bytes.Replace(catalog.DefaultCatalog(), []byte(`"version": "1.0.0"`), []byte(`"version": "2.0.0"`), 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(remote)
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, err := execute(t, "update", "--data-dir", dir, "--url", srv.URL)
	if err != nil {
		t.Fatalf("update: %v\n%s", err, out)
	}
	if !strings.Contains(out, "catalog updated: 1.0.0 -> 2.0.0") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = execute(t, "update", "--data-dir", dir, "--url", srv.URL)
	if err != nil {
		t.Fatalf("second update: %v\n%s", err, out)
	}
	if !strings.Contains(out, "catalog 2.0.0 is up to date") {
		t.Fatalf("second update should find no changes, got %q", out)
	}

	// The --url override applies to one run; periodic checks keep the saved URL.
	saved, err := update.LoadSettings(filepath.Join(dir, "meteors.toml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if saved.URL != update.DefaultURL {
		t.Fatalf("saved URL = %q, want %q", saved.URL, update.DefaultURL)
	}
}

func TestUpdateCommandReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	if _, err := execute(t, "update", "--data-dir", t.TempDir(), "--url", srv.URL); err == nil {
		t.Fatalf("update against a failing server should return an error")
	}
}

func TestGRPCHealthFollowsCatalog(t *testing.T) {
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	server, healthSrv := newGRPCServer(collector, logging.Noop())
	store := catalog.NewStore()
	reportHealth(healthSrv, store)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status without catalog = %v", got)
	}

	snap, err := catalog.Parse(catalog.DefaultCatalog())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := store.Replace(snap); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	reportHealth(healthSrv, store)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status with catalog = %v", got)
	}

	if n := rpcRequestCount(t, collector); n == 0 {
		t.Fatalf("health checks were not counted by the RPC interceptor")
	}
}

func rpcRequestCount(t *testing.T, c *observability.Collector) int {
	t.Helper()
	families, err := c.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "meteors_rpc_requests_total" {
			total := 0
			for _, m := range mf.GetMetric() {
				total += int(m.GetCounter().GetValue())
			}
			return total
		}
	}
	return 0
}
