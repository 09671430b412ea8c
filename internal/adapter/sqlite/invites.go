package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wgenroll/internal/enroll"
)

func (o ops) SaveInvite(ctx context.Context, inv enroll.Invite) error {
	const upsert = `
INSERT INTO invites (
	invite_code,
	user_id,
	device_id,
	created_at,
	expires_at,
	used_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(invite_code) DO UPDATE SET
	user_id = excluded.user_id,
	device_id = excluded.device_id,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at,
	used_at = excluded.used_at`

	if _, err := o.q.ExecContext(
		ctx,
		upsert,
		inv.Code,
		inv.UserID,
		inv.DeviceID,
		toNanos(inv.CreatedAt),
		toNanos(inv.ExpiresAt),
		nullableNanos(inv.UsedAt),
	); err != nil {
		return fmt.Errorf("write invite: %w", err)
	}
	return nil
}

func (o ops) GetInvite(ctx context.Context, code string) (enroll.Invite, bool, error) {
	row := o.q.QueryRowContext(ctx, `
SELECT invite_code, user_id, device_id, created_at, expires_at, used_at
FROM invites
WHERE invite_code = ?`, code)

	var (
		inv                  enroll.Invite
		createdAt, expiresAt int64
		usedAt               sql.NullInt64
	)
	if err := row.Scan(&inv.Code, &inv.UserID, &inv.DeviceID, &createdAt, &expiresAt, &usedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return enroll.Invite{}, false, nil
		}
		return enroll.Invite{}, false, fmt.Errorf("read invite: %w", err)
	}
	inv.CreatedAt = fromNanos(createdAt)
	inv.ExpiresAt = fromNanos(expiresAt)
	inv.UsedAt = timePtr(usedAt)
	return inv, true, nil
}

// ConsumeInvite uses UPDATE ... WHERE used_at IS NULL AND expires_at > now so
// only one writer can flip the row; zero affected rows means the code is
// unknown, spent, or expired.
func (o ops) ConsumeInvite(ctx context.Context, code string, now time.Time) (enroll.Invite, bool, error) {
	result, err := o.q.ExecContext(ctx,
		`UPDATE invites SET used_at = ? WHERE invite_code = ? AND used_at IS NULL AND expires_at > ?`,
		toNanos(now), code, toNanos(now),
	)
	if err != nil {
		return enroll.Invite{}, false, fmt.Errorf("consume invite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return enroll.Invite{}, false, fmt.Errorf("check affected rows: %w", err)
	}
	if n == 0 {
		return enroll.Invite{}, false, nil
	}
	return o.GetInvite(ctx, code)
}
