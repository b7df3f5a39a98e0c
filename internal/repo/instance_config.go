package repo

import (
	"context"
	"database/sql"
	"time"
)

// GetInstanceConfig returns the raw YAML for the singleton instance config row.
func (r Repo) GetInstanceConfig(ctx context.Context) (string, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM instance_config WHERE singleton=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return payload, err
}

// UpsertInstanceConfig overwrites the singleton instance config row in place.
func (r Repo) UpsertInstanceConfig(ctx context.Context, configYAML string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO instance_config(singleton,config_yaml,updated_at) VALUES (1,?,?)
ON CONFLICT(singleton) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`, configYAML, now)
	return err
}
