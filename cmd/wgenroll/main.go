package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/cmdutil"
	"wgenroll/cmd/wgenroll/contextcmd"
	"wgenroll/cmd/wgenroll/enrollcmd"
	"wgenroll/cmd/wgenroll/invitecmd"
	"wgenroll/cmd/wgenroll/keygencmd"
	"wgenroll/cmd/wgenroll/peercmd"
	"wgenroll/cmd/wgenroll/statuscmd"
	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/internal/buildinfo"
	"wgenroll/internal/logging"
)

func main() {
	var (
		debug         bool
		noInteraction bool
		conn          cmdutil.ConnFlags
	)
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "wgenroll",
		Short:         "Enroll devices into a WireGuard overlay network",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureInteraction(noInteraction)
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, logging.FormatText)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noInteraction, "no-interaction", false, "Never prompt")
	conn.Bind(root)

	root.AddCommand(invitecmd.Cmd(&conn))
	root.AddCommand(enrollcmd.Cmd(&conn))
	root.AddCommand(peercmd.Cmd(&conn))
	root.AddCommand(statuscmd.Cmd(&conn))
	root.AddCommand(statuscmd.AuditCmd(&conn))
	root.AddCommand(keygencmd.Cmd())
	root.AddCommand(contextcmd.Cmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("error:")+" "+err.Error())
		os.Exit(1)
	}
}
