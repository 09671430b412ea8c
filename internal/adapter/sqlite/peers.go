package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wgenroll/internal/enroll"
)

const peerColumns = `peer_id, user_id, device_id, overlay_ip, allowed_ips_json, public_key, created_at, revoked_at, tags_json`

func (o ops) SavePeer(ctx context.Context, p enroll.Peer) error {
	allowed, tags, err := encodePeerJSON(p.AllowedIPs, p.Tags)
	if err != nil {
		return err
	}

	const upsert = `
INSERT INTO peers (
	peer_id,
	user_id,
	device_id,
	overlay_ip,
	allowed_ips_json,
	public_key,
	created_at,
	revoked_at,
	tags_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(peer_id) DO UPDATE SET
	user_id = excluded.user_id,
	device_id = excluded.device_id,
	overlay_ip = excluded.overlay_ip,
	allowed_ips_json = excluded.allowed_ips_json,
	public_key = excluded.public_key,
	created_at = excluded.created_at,
	revoked_at = excluded.revoked_at,
	tags_json = excluded.tags_json`

	if _, err := o.q.ExecContext(
		ctx,
		upsert,
		p.ID,
		p.UserID,
		p.DeviceID,
		p.OverlayIP,
		allowed,
		p.PublicKey,
		toNanos(p.CreatedAt),
		nullableNanos(p.RevokedAt),
		tags,
	); err != nil {
		return fmt.Errorf("write peer %q: %w", p.ID, err)
	}
	return nil
}

func (o ops) GetPeer(ctx context.Context, id string) (enroll.Peer, bool, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+peerColumns+` FROM peers WHERE peer_id = ?`, id)
	p, err := scanPeer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return enroll.Peer{}, false, nil
		}
		return enroll.Peer{}, false, fmt.Errorf("read peer %q: %w", id, err)
	}
	return p, true, nil
}

func (o ops) ListPeers(ctx context.Context) ([]enroll.Peer, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT `+peerColumns+` FROM peers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query peers: %w", err)
	}
	defer rows.Close()

	var out []enroll.Peer
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peers: %w", err)
	}
	return out, nil
}

func (o ops) RevokePeer(ctx context.Context, id string, at time.Time) (enroll.Peer, bool, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := o.q.ExecContext(ctx,
		`UPDATE peers SET revoked_at = ? WHERE peer_id = ? AND revoked_at IS NULL`,
		toNanos(at), id,
	); err != nil {
		return enroll.Peer{}, false, fmt.Errorf("revoke peer %q: %w", id, err)
	}
	return o.GetPeer(ctx, id)
}

func (o ops) UpdatePeer(ctx context.Context, id string, patch enroll.PeerPatch) (enroll.Peer, bool, error) {
	var (
		sets []string
		args []any
	)
	if patch.AllowedIPs != nil {
		raw, err := json.Marshal(nonNilSlice(*patch.AllowedIPs))
		if err != nil {
			return enroll.Peer{}, false, fmt.Errorf("marshal allowed ips: %w", err)
		}
		sets = append(sets, "allowed_ips_json = ?")
		args = append(args, string(raw))
	}
	if patch.Tags != nil {
		raw, err := json.Marshal(nonNilMap(*patch.Tags))
		if err != nil {
			return enroll.Peer{}, false, fmt.Errorf("marshal tags: %w", err)
		}
		sets = append(sets, "tags_json = ?")
		args = append(args, string(raw))
	}

	if len(sets) > 0 {
		args = append(args, id)
		if _, err := o.q.ExecContext(ctx,
			`UPDATE peers SET `+strings.Join(sets, ", ")+` WHERE peer_id = ?`,
			args...,
		); err != nil {
			return enroll.Peer{}, false, fmt.Errorf("update peer %q: %w", id, err)
		}
	}
	return o.GetPeer(ctx, id)
}

// FindPeerByUserDevice orders the earliest active peer first, then revoked
// peers newest first.
func (o ops) FindPeerByUserDevice(ctx context.Context, userID, deviceID string) (enroll.Peer, bool, error) {
	const query = `
SELECT ` + peerColumns + `
FROM peers
WHERE user_id = ? AND device_id = ?
ORDER BY
	revoked_at IS NULL DESC,
	CASE WHEN revoked_at IS NULL THEN seq ELSE -seq END ASC
LIMIT 1`

	p, err := scanPeer(o.q.QueryRowContext(ctx, query, userID, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return enroll.Peer{}, false, nil
		}
		return enroll.Peer{}, false, fmt.Errorf("find peer for user %q device %q: %w", userID, deviceID, err)
	}
	return p, true, nil
}

func scanPeer(s scanner) (enroll.Peer, error) {
	var (
		p           enroll.Peer
		allowedJSON string
		tagsJSON    string
		createdAt   int64
		revokedAt   sql.NullInt64
	)
	if err := s.Scan(
		&p.ID,
		&p.UserID,
		&p.DeviceID,
		&p.OverlayIP,
		&allowedJSON,
		&p.PublicKey,
		&createdAt,
		&revokedAt,
		&tagsJSON,
	); err != nil {
		return enroll.Peer{}, err
	}
	if err := json.Unmarshal([]byte(allowedJSON), &p.AllowedIPs); err != nil {
		return enroll.Peer{}, fmt.Errorf("parse allowed ips of peer %q: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return enroll.Peer{}, fmt.Errorf("parse tags of peer %q: %w", p.ID, err)
	}
	p.AllowedIPs = nonNilSlice(p.AllowedIPs)
	p.Tags = nonNilMap(p.Tags)
	p.CreatedAt = fromNanos(createdAt)
	p.RevokedAt = timePtr(revokedAt)
	return p, nil
}

func encodePeerJSON(allowed []string, tags map[string]string) (string, string, error) {
	a, err := json.Marshal(nonNilSlice(allowed))
	if err != nil {
		return "", "", fmt.Errorf("marshal allowed ips: %w", err)
	}
	t, err := json.Marshal(nonNilMap(tags))
	if err != nil {
		return "", "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(a), string(t), nil
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
