package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alertline/internal/config"
	"alertline/internal/domain"
	"alertline/internal/events"
	"alertline/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Settings *config.Cache
	Now      func() time.Time
}

// New builds an Engine over an open database. seed is used for the instance
// config when the database has none yet.
func New(db *sql.DB, seed *config.Config) Engine {
	r := repo.Repo{DB: db}
	if seed == nil {
		seed = config.Default("alertline")
	}
	cache := &config.Cache{
		Load: func(ctx context.Context) (*config.Config, error) {
			raw, err := r.GetInstanceConfig(ctx)
			if errors.Is(err, repo.ErrNotFound) {
				return seed, nil
			}
			if err != nil {
				return nil, err
			}
			return config.FromYAML([]byte(raw))
		},
	}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Settings: cache,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CreateNotificationOptions are parameters for creating a notification.
type CreateNotificationOptions struct {
	ID        string
	Container string
	Config    domain.Config
	ActorID   string
}

func (e Engine) CreateNotification(ctx context.Context, opts CreateNotificationOptions) (domain.NotificationRecord, error) {
	if opts.Container == "" {
		return domain.NotificationRecord{}, errors.New("container is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return domain.NotificationRecord{}, err
	}
	settings, err := e.Settings.Get(ctx)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	if !settings.KindAllowed(string(opts.Config.Kind())) {
		return domain.NotificationRecord{}, fmt.Errorf("notification kind %s not allowed on this instance", opts.Config.Kind())
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	n := domain.NotificationRecord{
		ID:        id,
		Container: opts.Container,
		Config:    opts.Config.Clone(),
		Version:   repo.NewVersion(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return domain.NotificationRecord{}, err
	}
	if err := e.Events.Append(ctx, tx, "notification.created", "notification", n.ID, opts.ActorID, events.EventPayload{
		"container": n.Container,
		"kind":      string(n.Config.Kind()),
	}); err != nil {
		return domain.NotificationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.NotificationRecord{}, err
	}
	return n, nil
}

func (e Engine) GetNotification(ctx context.Context, id string) (domain.NotificationRecord, error) {
	return e.Repo.GetNotification(ctx, id)
}

func (e Engine) ListNotifications(ctx context.Context) ([]domain.NotificationRecord, error) {
	return e.Repo.ListNotifications(ctx)
}

// UpdateNotification replaces a record's config, guarded by the version token
// the caller read.
func (e Engine) UpdateNotification(ctx context.Context, id string, cfg domain.Config, expectedVersion, actorID string) (domain.NotificationRecord, error) {
	if err := cfg.Validate(); err != nil {
		return domain.NotificationRecord{}, err
	}
	n, err := e.Repo.UpdateNotificationConfig(ctx, id, cfg, expectedVersion)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	if err := e.Events.Append(ctx, nil, "notification.updated", "notification", n.ID, actorID, events.EventPayload{
		"kind": string(n.Config.Kind()),
	}); err != nil {
		return n, err
	}
	return n, nil
}

func (e Engine) DeleteNotification(ctx context.Context, id, actorID string) error {
	if err := e.Repo.DeleteNotification(ctx, id); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, "notification.deleted", "notification", id, actorID, nil)
}

// InstanceConfig returns the cached instance settings.
func (e Engine) InstanceConfig(ctx context.Context) (*config.Config, error) {
	return e.Settings.Get(ctx)
}

// SaveInstanceConfig persists new instance settings and overwrites the cache
// in place.
func (e Engine) SaveInstanceConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	if err := e.Repo.UpsertInstanceConfig(ctx, raw); err != nil {
		return err
	}
	e.Settings.Set(cfg)
	return e.Events.Append(ctx, nil, "config.updated", "config", "instance", actorID, nil)
}
