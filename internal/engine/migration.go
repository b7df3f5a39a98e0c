package engine

import (
	"context"
	"log"

	"alertline/internal/dialect"
	"alertline/internal/domain"
	"alertline/internal/events"
)

// MigrationResult buckets the outcome of one migration pass. A record lands in
// at most one bucket; records with no eligible fields appear in none. Bucket
// order carries no meaning, compare as sets.
type MigrationResult struct {
	NotificationIDsToUpdate []string `json:"notification_ids_to_update"`
	UpdatedNotificationIDs  []string `json:"updated_notification_ids"`
	FailedNotificationIDs   []string `json:"failed_notification_ids"`
}

// MigrateTemplates rewrites every legacy-syntax template field of every stored
// notification to the target syntax. In dry-run mode it only reports which
// records would change. In commit mode each record is written back under its
// own version token; one record's failure never aborts the batch. The pass is
// idempotent: already-migrated records detect no eligible fields and are left
// alone.
func (e Engine) MigrateTemplates(ctx context.Context, dryRun bool, actorID string) (MigrationResult, error) {
	result := MigrationResult{
		NotificationIDsToUpdate: []string{},
		UpdatedNotificationIDs:  []string{},
		FailedNotificationIDs:   []string{},
	}
	records, err := e.Repo.ListNotifications(ctx)
	if err != nil {
		return result, err
	}
	for _, rec := range records {
		if ctx.Err() != nil {
			// Records already committed stay committed; report only what was
			// processed before cancellation.
			return result, ctx.Err()
		}
		updates, err := planTemplateUpdates(rec.Config)
		if err != nil {
			// Fails closed: a record we cannot plan is never reported as a
			// would-update, and counts as failed on commit.
			if !dryRun {
				result.FailedNotificationIDs = append(result.FailedNotificationIDs, rec.ID)
			}
			continue
		}
		if len(updates) == 0 {
			continue
		}
		if dryRun {
			result.NotificationIDsToUpdate = append(result.NotificationIDsToUpdate, rec.ID)
			continue
		}
		newCfg, err := rec.Config.WithTemplateFields(updates)
		if err != nil {
			result.FailedNotificationIDs = append(result.FailedNotificationIDs, rec.ID)
			continue
		}
		if _, err := e.Repo.UpdateNotificationConfig(ctx, rec.ID, newCfg, rec.Version); err != nil {
			// Version conflicts, vanished records and storage errors all land
			// here; the result carries the id, not the cause.
			result.FailedNotificationIDs = append(result.FailedNotificationIDs, rec.ID)
			continue
		}
		result.UpdatedNotificationIDs = append(result.UpdatedNotificationIDs, rec.ID)
	}
	if !dryRun && len(result.UpdatedNotificationIDs)+len(result.FailedNotificationIDs) > 0 {
		// Summary only; a dead audit trail must not fail a completed pass, but
		// it must be visible.
		if err := e.Events.Append(ctx, nil, "notification.templates.migrated", "notification", "", actorID, events.EventPayload{
			"updated": len(result.UpdatedNotificationIDs),
			"failed":  len(result.FailedNotificationIDs),
		}); err != nil {
			log.Printf("events: migration summary not recorded: %v", err)
		}
	}
	return result, nil
}

// planTemplateUpdates returns the adapted value for every eligible template
// field of cfg. An empty map means the record is already fully migrated (or
// declares no template fields at all).
func planTemplateUpdates(cfg domain.Config) (map[domain.FieldLocator]string, error) {
	fields, err := cfg.TemplateFields()
	if err != nil {
		return nil, err
	}
	updates := make(map[domain.FieldLocator]string)
	for _, f := range fields {
		if !dialect.IsLegacy(f.Value) {
			continue
		}
		updates[f.Locator] = dialect.Adapt(f.Value)
	}
	return updates, nil
}
