package peercmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/cmdutil"
	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/internal/enroll"
)

// Cmd returns the "wgenroll peer" command.
func Cmd(conn *cmdutil.ConnFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Inspect and manage enrolled peers",
	}
	cmd.AddCommand(listCmd(conn))
	cmd.AddCommand(selfCmd(conn))
	cmd.AddCommand(revokeCmd(conn))
	cmd.AddCommand(patchCmd(conn))
	return cmd
}

func listCmd(conn *cmdutil.ConnFlags) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List peers (admin)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			peers, err := c.ListPeers(cmd.Context())
			if err != nil {
				return err
			}
			if activeOnly {
				peers = slices.DeleteFunc(peers, func(p enroll.Peer) bool { return !p.Active() })
			}
			if len(peers) == 0 {
				fmt.Println(ui.InfoMsg("No peers."))
				return nil
			}
			fmt.Println(ui.Table([]string{"ID", "USER", "DEVICE", "IP", "STATE", "CREATED", "TAGS"}, peerRows(peers)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Hide revoked peers")
	return cmd
}

func selfCmd(conn *cmdutil.ConnFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "self",
		Short: "Show the calling user's active peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			p, err := c.SelfPeer(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(describe(p))
			return nil
		},
	}
}

func revokeCmd(conn *cmdutil.ConnFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <peer-id>",
		Short: "Revoke a peer (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			p, err := c.RevokePeer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Peer %s revoked at %s.", ui.Bold(p.ID), ui.Time(p.RevokedAt)))
			return nil
		},
	}
}

func patchCmd(conn *cmdutil.ConnFlags) *cobra.Command {
	var (
		allowedIPs []string
		tags       map[string]string
		clearTags  bool
	)

	cmd := &cobra.Command{
		Use:   "patch <peer-id>",
		Short: "Replace a peer's allowed IPs or tags (admin)",
		Long: `Replace a peer's allowed IPs or tags.

Only the flags given are changed. Passing --allowed-ips "" clears the
allowed IPs; --clear-tags removes every tag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := buildPatch(
				cmd.Flags().Changed("allowed-ips"), allowedIPs,
				cmd.Flags().Changed("tags") || clearTags, tags,
			)
			if patch.AllowedIPs == nil && patch.Tags == nil {
				return fmt.Errorf("nothing to change: pass --allowed-ips or --tags")
			}

			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			p, err := c.PatchPeer(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Peer %s updated.", ui.Bold(p.ID)))
			fmt.Print(describe(p))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&allowedIPs, "allowed-ips", nil, "Comma-separated CIDRs routed through the tunnel")
	cmd.Flags().StringToStringVar(&tags, "tags", nil, "Comma-separated key=value tags")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "Remove every tag")
	cmd.MarkFlagsMutuallyExclusive("tags", "clear-tags")
	return cmd
}

func buildPatch(allowedSet bool, allowed []string, tagsSet bool, tags map[string]string) enroll.PeerPatch {
	var patch enroll.PeerPatch
	if allowedSet {
		cleaned := make([]string, 0, len(allowed))
		for _, a := range allowed {
			if a = strings.TrimSpace(a); a != "" {
				cleaned = append(cleaned, a)
			}
		}
		patch.AllowedIPs = &cleaned
	}
	if tagsSet {
		cloned := maps.Clone(tags)
		if cloned == nil {
			cloned = map[string]string{}
		}
		patch.Tags = &cloned
	}
	return patch
}

func peerRows(peers []enroll.Peer) [][]string {
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		rows = append(rows, []string{
			p.ID,
			p.UserID,
			p.DeviceID,
			p.OverlayIP,
			ui.PeerState(p.Active()),
			ui.Time(&p.CreatedAt),
			formatTags(p.Tags),
		})
	}
	return rows
}

func describe(p enroll.Peer) string {
	return ui.KeyValues("  ",
		ui.KV("ID", p.ID),
		ui.KV("User", p.UserID),
		ui.KV("Device", p.DeviceID),
		ui.KV("Overlay IP", p.OverlayIP),
		ui.KV("Allowed IPs", strings.Join(p.AllowedIPs, ", ")),
		ui.KV("Public key", p.PublicKey),
		ui.KV("State", ui.PeerState(p.Active())),
		ui.KV("Created", ui.Time(&p.CreatedAt)),
		ui.KV("Revoked", ui.Time(p.RevokedAt)),
		ui.KV("Tags", formatTags(p.Tags)),
	)
}

func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}
