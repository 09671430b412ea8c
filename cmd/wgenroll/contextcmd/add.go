package contextcmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/config"
)

func addCmd() *cobra.Command {
	var (
		c   config.Context
		use bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			if c.Socket == "" && c.Address == "" {
				return errors.New("at least one of --socket or --addr is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Set(name, c)
			if use || cfg.CurrentContext == "" {
				cfg.CurrentContext = name
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("Context %s saved.", ui.Bold(name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&c.Socket, "socket", "", "Daemon unix socket path")
	cmd.Flags().StringVar(&c.Address, "addr", "", "Daemon TCP address (host:port)")
	cmd.Flags().StringVar(&c.UserID, "user", "", "User id to act as")
	cmd.Flags().StringVar(&c.Role, "role", "", "Role to assert (admin, owner)")
	cmd.Flags().BoolVar(&use, "use", false, "Make this the current context")
	return cmd
}
