package statuscmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/cmdutil"
	"wgenroll/cmd/wgenroll/ui"
)

// Cmd returns the "wgenroll status" command.
func Cmd(conn *cmdutil.ConnFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the calling user's connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			connected := ui.Muted("no")
			if st.Connected {
				connected = ui.Success("yes")
			}
			overlay := st.OverlayIP
			if overlay == "" {
				overlay = "-"
			}
			fmt.Print(ui.KeyValues("  ",
				ui.KV("Enrolled", connected),
				ui.KV("Overlay IP", overlay),
				ui.KV("Server", st.ServerEndpoint),
				ui.KV("Last handshake", ui.Time(st.PeerSeenAt)),
			))
			return nil
		},
	}
}
