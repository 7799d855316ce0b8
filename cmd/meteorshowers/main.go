// Command meteorshowers runs the meteor shower engine: it keeps the shower
// catalog current, simulates meteor streams on a frame clock and serves the
// result over HTTP and gRPC.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/meteor-showers/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries state shared by the command tree.
type cli struct {
	v         *viper.Viper
	configErr error
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "meteorshowers",
		Short:         "Meteor shower catalog and activity engine",
		Long:          "meteorshowers keeps a meteor shower catalog current and simulates the meteors of the showers active at the simulated date.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.initConfig(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "config file (default meteors.yaml)")
	root.PersistentFlags().String("data-dir", "", "directory holding the catalog and settings files")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	_ = c.v.BindPFlag("data_dir", root.PersistentFlags().Lookup("data-dir"))
	_ = c.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		c.newServeCmd(),
		c.newUpdateCmd(),
		c.newValidateCmd(),
		c.newQueryCmd(),
	)
	return root
}

func (c *cli) initConfig(cmd *cobra.Command) {
	if err := config.LoadDotEnv(); err != nil {
		c.configErr = err
		return
	}
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName("meteors")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(filepath.Join(home, ".config", "meteorshowers"))
		}
	}

	// A missing config file is fine; defaults and environment apply.
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			c.configErr = fmt.Errorf("reading config: %w", err)
		}
	}
}

func (c *cli) load() (config.Config, error) {
	if c.configErr != nil {
		return config.Config{}, c.configErr
	}
	return config.LoadFrom(c.v)
}
