package contextcmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/config"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List available contexts",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.Contexts) == 0 {
				fmt.Println(ui.InfoMsg("No contexts configured."))
				return nil
			}
			fmt.Println(ui.Table([]string{"", "NAME", "TYPE", "TARGET", "USER", "ROLE"}, contextRows(cfg)))
			return nil
		},
	}
}

func contextRows(cfg *config.Config) [][]string {
	var rows [][]string
	for _, name := range slices.Sorted(maps.Keys(cfg.Contexts)) {
		c := cfg.Contexts[name]

		current := ""
		if name == cfg.CurrentContext {
			current = "*"
		}
		kind, target := "tcp", c.Address
		if c.Socket != "" {
			kind, target = "local", c.Socket
		}
		rows = append(rows, []string{current, name, kind, target, c.UserID, c.Role})
	}
	return rows
}
