package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alertline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means the record changed between read and write; the
	// caller's version token is stale.
	ErrVersionConflict = errors.New("version conflict")
)

// NewVersion mints a fresh concurrency token.
func NewVersion() string {
	return uuid.New().String()
}

// InsertNotification writes a new record inside the caller's transaction so
// the row and its audit event commit or roll back together.
func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.NotificationRecord) error {
	payload, err := json.Marshal(n.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO notifications(id,container,config_kind,config_json,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.Container, string(n.Config.Kind()), string(payload), n.Version, n.CreatedAt, n.UpdatedAt)
	return err
}

func scanNotification(scan func(dest ...any) error) (domain.NotificationRecord, error) {
	var n domain.NotificationRecord
	var payload string
	err := scan(&n.ID, &n.Container, &payload, &n.Version, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if err := json.Unmarshal([]byte(payload), &n.Config); err != nil {
		return n, fmt.Errorf("decode config for %s: %w", n.ID, err)
	}
	return n, nil
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.NotificationRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,container,config_json,version,created_at,updated_at FROM notifications WHERE id=?`, id)
	return scanNotification(row.Scan)
}

// ListNotifications returns every stored record; filtering is left to callers.
func (r Repo) ListNotifications(ctx context.Context) ([]domain.NotificationRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,container,config_json,version,created_at,updated_at FROM notifications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// UpdateNotificationConfig writes a new config for id iff the stored version
// still equals expectedVersion, regenerating the version token. It never falls
// back to last-writer-wins: a stale token surfaces as ErrVersionConflict.
func (r Repo) UpdateNotificationConfig(ctx context.Context, id string, cfg domain.Config, expectedVersion string) (domain.NotificationRecord, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return domain.NotificationRecord{}, fmt.Errorf("marshal config: %w", err)
	}
	newVersion := NewVersion()
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET config_kind=?, config_json=?, version=?, updated_at=? WHERE id=? AND version=?`,
		string(cfg.Kind()), string(payload), newVersion, now, id, expectedVersion)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Distinguish a vanished record from a concurrent edit.
		if _, err := r.GetNotification(ctx, id); errors.Is(err, ErrNotFound) {
			return domain.NotificationRecord{}, ErrNotFound
		}
		return domain.NotificationRecord{}, ErrVersionConflict
	}
	return r.GetNotification(ctx, id)
}

func (r Repo) DeleteNotification(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := "1=1"
	var args []any
	if evtType != "" {
		clauses += " AND type=?"
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses += " AND entity_kind=?"
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses += " AND entity_id=?"
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` + clauses + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
