package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/meteor-showers/catalog"
)

func (c *cli) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog.json>...",
		Short: "Check that catalog files parse and validate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				snap, err := catalog.Load(path)
				if err == nil {
					fmt.Fprintf(out, "%s: ok (version %s, %d showers)\n", path, snap.Version(), snap.Len())
					continue
				}
				failed++
				fmt.Fprintf(out, "%s: %v\n", path, err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d catalogs invalid", failed, len(args))
			}
			return nil
		},
	}
}
