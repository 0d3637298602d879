package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/FranksOps/harvest/internal/config"
	"github.com/FranksOps/harvest/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
	logFile io.Closer
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"driver":     "storage.driver",
	"dsn":        "storage.dsn",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
	"cap":        "search.cap",
	"providers":  "search.providers",
	"features":   "extract.features",
	"mode":       "extract.mode",
	"headless":   "search.headless",
	"download":   "download.enabled",
	"metrics":    "metrics.port",
	"proxy":      "scrape.proxies",
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "harvest",
		Short:         "Aggregate search results and extract page features",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logFile != nil {
				return a.logFile.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./harvest.yaml)")
	pf.String("driver", "", "storage driver: sqlite, postgres or bolt")
	pf.String("dsn", "", "storage DSN or file path")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	pf.String("log-file", "", "also write logs to this rotated file")

	root.AddCommand(
		newRunCmd(a),
		newShowCmd(a),
		newProvidersCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			// Version needs no configuration.
			PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "harvest version %s\n", version)
			},
		},
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger = logger
	a.logFile = closer
	return nil
}
