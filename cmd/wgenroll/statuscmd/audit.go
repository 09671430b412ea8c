package statuscmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"wgenroll/cmd/wgenroll/cmdutil"
	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/internal/enroll"
)

// AuditCmd returns the "wgenroll audit" command.
func AuditCmd(conn *cmdutil.ConnFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit events, newest first (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			events, err := c.ListAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			if len(events) == 0 {
				fmt.Println(ui.InfoMsg("No audit events."))
				return nil
			}
			fmt.Println(ui.Table([]string{"TIME", "ACTOR", "ACTION", "SUBJECT", "DETAILS"}, auditRows(events)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", enroll.DefaultAuditLimit, "Maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

func auditRows(events []enroll.AuditEvent) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		actor := ev.ActorUserID
		if actor == "" {
			actor = "-"
		}
		rows = append(rows, []string{ui.Time(&ev.TS), actor, ev.Action, ev.Subject, formatMeta(ev.Meta)})
	}
	return rows
}

func formatMeta(meta map[string]any) string {
	parts := make([]string, 0, len(meta))
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(parts, " ")
}
