package invitecmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/cmdutil"
	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/internal/enroll"
)

// Cmd returns the "wgenroll invite" command.
func Cmd(conn *cmdutil.ConnFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Manage enrollment invites",
	}
	cmd.AddCommand(createCmd(conn))
	return cmd
}

func createCmd(conn *cmdutil.ConnFlags) *cobra.Command {
	var (
		userID   string
		deviceID string
		ttl      time.Duration
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a single-use invite (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			inv, err := c.CreateInvite(cmd.Context(), userID, deviceID, ttl)
			if err != nil {
				return err
			}
			if quiet {
				fmt.Println(inv.Code)
				return nil
			}

			device := inv.DeviceID
			if device == "" {
				device = ui.Muted("any")
			}
			fmt.Println(ui.SuccessMsg("Invite created for %s.", ui.Bold(inv.UserID)))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("Code", ui.Accent(inv.Code)),
				ui.KV("Device", device),
				ui.KV("Expires", ui.Time(&inv.ExpiresAt)),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "for", "", "User the invite is issued to")
	cmd.Flags().StringVar(&deviceID, "device", "", "Bind the invite to one device id")
	cmd.Flags().DurationVar(&ttl, "ttl", enroll.DefaultInviteTTL, "Invite lifetime (1m to 24h)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the invite code")
	_ = cmd.MarkFlagRequired("for")
	return cmd
}
