package main

import (
	"encoding/json"
	"fmt"

	"github.com/FranksOps/harvest/internal/report"
	"github.com/FranksOps/harvest/internal/storage"
	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		filter storage.Filter
		format string
		width  int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored results grouped by query, provider, link and feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.Browse(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("browsing results: %w", err)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "text":
				return report.WriteBrowseText(out, report.Group(rows), width)
			case "html":
				return report.WriteBrowseHTML(out, report.Group(rows))
			case "csv":
				return report.WriteBrowseCSV(out, rows)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report.Group(rows))
			default:
				return fmt.Errorf("unknown format %q (want text, html, csv or json)", format)
			}
		},
	}

	f := cmd.Flags()
	f.StringVarP(&filter.Query, "query", "q", "", "only this query")
	f.StringVar(&filter.Provider, "provider", "", "only this provider tag")
	f.IntVar(&filter.Limit, "limit", 0, "maximum rows")
	f.StringVar(&format, "format", "text", "text, html, csv or json")
	f.IntVar(&width, "width", 120, "shorten text values to this many characters (0 prints them in full)")
	return cmd
}
