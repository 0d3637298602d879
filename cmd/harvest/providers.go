package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List provider tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, limiter, err := a.newRegistry()
			if err != nil {
				return err
			}
			defer limiter.Stop()

			enabled := registry.Tags()
			out := cmd.OutOrStdout()
			for _, name := range registry.Names() {
				if enabled[name] {
					fmt.Fprintln(out, name)
				} else {
					fmt.Fprintf(out, "%s (disabled)\n", name)
				}
			}
			fmt.Fprintf(out, "\nengines: %v\n", registry.Engines())
			return nil
		},
	}
}
