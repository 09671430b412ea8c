package statuscmd

import (
	"testing"
	"time"

	"wgenroll/internal/enroll"
)

func TestAuditRows(t *testing.T) {
	t.Parallel()

	rows := auditRows([]enroll.AuditEvent{{
		TS:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Action:  enroll.ActionEnroll,
		Subject: "wg_abc",
		Meta:    map[string]any{"overlay_ip": "10.77.0.2", "device_id": "laptop"},
	}})
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	row := rows[0]
	if row[1] != "-" || row[2] != enroll.ActionEnroll || row[3] != "wg_abc" {
		t.Fatalf("unexpected row %v", row)
	}
	if row[4] != "device_id=laptop overlay_ip=10.77.0.2" {
		t.Fatalf("details = %q", row[4])
	}
}
