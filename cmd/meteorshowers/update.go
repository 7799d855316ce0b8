package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/model"
)

func (c *cli) newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the remote catalog once and install it if its version changed",
		RunE:  c.runUpdate,
	}
	cmd.Flags().String("url", "", "catalog URL for this run only (default from settings)")
	cmd.Flags().Duration("timeout", 2*time.Minute, "give up after this long")
	return cmd
}

func (c *cli) runUpdate(cmd *cobra.Command, _ []string) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	cfg.WatchCatalog = false
	log := logging.New(cfg.LoggingConfig())

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg, log, nil, time.Now().UTC())
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")
	previous := rt.store.Version()
	rt.updater.RequestUpdateFrom(url)
	state, err := rt.updater.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for update: %w", err)
	}

	out := cmd.OutOrStdout()
	switch state {
	case model.UpdateCompleteUpdates:
		fmt.Fprintf(out, "catalog updated: %s -> %s\n", previous, rt.store.Version())
	case model.UpdateCompleteNoUpdates:
		fmt.Fprintf(out, "catalog %s is up to date\n", previous)
	default:
		return fmt.Errorf("update failed: %s", state)
	}
	return nil
}
