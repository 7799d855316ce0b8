package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/meteor-showers/activity"
	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/core"
)

func (c *cli) newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List the showers active at an instant",
		RunE:  c.runQuery,
	}
	cmd.Flags().String("at", "", "instant to query, RFC 3339 (default now)")
	cmd.Flags().String("catalog", "", "catalog file (default the installed catalog, else the built-in one)")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}

type queryRow struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	ZHR      float64   `json:"zhr"`
	PeakZHR  int       `json:"peak_zhr"`
	Peak     time.Time `json:"peak"`
	Finish   time.Time `json:"finish"`
	Altitude float64   `json:"radiant_altitude"`
}

func (c *cli) runQuery(cmd *cobra.Command, _ []string) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	at := time.Now().UTC()
	if raw, _ := cmd.Flags().GetString("at"); raw != "" {
		if at, err = time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		path = cfg.CatalogFile
	}
	snap, err := readCatalog(path, cmd.Flags().Changed("catalog"))
	if err != nil {
		return err
	}

	observer := core.Observer{LatitudeDeg: cfg.Observer.Latitude, LongitudeDeg: cfg.Observer.Longitude}

	var rows []queryRow
	for _, a := range activity.ActiveInfo(snap.Showers(), at) {
		alt, _ := observer.Horizontal(a.Radiant.RA, a.Radiant.Dec, at)
		rows = append(rows, queryRow{
			ID:       a.ShowerID,
			Name:     a.Name,
			ZHR:      a.ZHR,
			PeakZHR:  a.PeakZHR,
			Peak:     a.Peak,
			Finish:   a.Finish,
			Altitude: alt,
		})
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"at": at, "version": snap.Version(), "active": rows})
	}
	return printRows(cmd.OutOrStdout(), at, rows)
}

// readCatalog parses the catalog at path. A missing file falls back to the
// built-in catalog unless the path was asked for explicitly.
func readCatalog(path string, explicit bool) (*catalog.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		data, err = catalog.DefaultCatalog(), nil
	}
	if err != nil {
		return nil, err
	}
	return catalog.Parse(data)
}

func printRows(w io.Writer, at time.Time, rows []queryRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "no showers active at %s\n", at.Format(time.RFC3339))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tZHR\tPEAK ZHR\tPEAK\tENDS\tALT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%s\t%s\t%.1f\n",
			r.ID, r.Name, r.ZHR, r.PeakZHR, r.Peak.Format("2006-01-02"), r.Finish.Format("2006-01-02"), r.Altitude)
	}
	return tw.Flush()
}
