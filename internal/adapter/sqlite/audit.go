package sqlite

import (
	"context"
	"fmt"

	"wgenroll/internal/enroll"
)

func (o ops) AppendAudit(ctx context.Context, ev enroll.AuditEvent) error {
	raw, err := enroll.MarshalMeta(ev.Meta)
	if err != nil {
		return err
	}

	if _, err := o.q.ExecContext(ctx, `
INSERT INTO audit_events (ts, actor_user_id, action, subject, meta_json)
VALUES (?, ?, ?, ?, ?)`,
		toNanos(ev.TS), ev.ActorUserID, ev.Action, ev.Subject, string(raw),
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if _, err := o.q.ExecContext(ctx, `
DELETE FROM audit_events
WHERE seq NOT IN (SELECT seq FROM audit_events ORDER BY seq DESC LIMIT ?)`,
		o.capacity,
	); err != nil {
		return fmt.Errorf("trim audit events: %w", err)
	}
	return nil
}

func (o ops) ListAudit(ctx context.Context, limit int) ([]enroll.AuditEvent, error) {
	if limit <= 0 {
		limit = enroll.DefaultAuditLimit
	}
	rows, err := o.q.QueryContext(ctx, `
SELECT ts, actor_user_id, action, subject, meta_json
FROM audit_events
ORDER BY seq DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []enroll.AuditEvent
	for rows.Next() {
		var (
			ev       enroll.AuditEvent
			ts       int64
			metaJSON string
		)
		if err := rows.Scan(&ts, &ev.ActorUserID, &ev.Action, &ev.Subject, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		meta, err := enroll.UnmarshalMeta([]byte(metaJSON))
		if err != nil {
			return nil, err
		}
		ev.Meta = meta
		ev.TS = fromNanos(ts)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
