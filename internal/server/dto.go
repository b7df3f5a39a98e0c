package server

import (
	"alertline/internal/domain"
	"alertline/internal/engine"
)

// Request payloads

type CreateNotificationRequest struct {
	ID        *string       `json:"id,omitempty"`
	Container string        `json:"container"`
	Config    domain.Config `json:"config"`
}

type UpdateNotificationRequest struct {
	Config  domain.Config `json:"config"`
	Version string        `json:"version"`
}

type MigrateTemplatesRequest struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// Response payloads

type NotificationResponse struct {
	ID        string        `json:"id"`
	Container string        `json:"container"`
	Kind      string        `json:"kind" enum:"work_item,issue,webhook"`
	Config    domain.Config `json:"config"`
	Version   string        `json:"version"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

// MigrateTemplatesResponse carries exactly one of the two shapes depending on
// the requested mode. Pointers keep empty lists present in the JSON while the
// other mode's fields stay absent.
type MigrateTemplatesResponse struct {
	DryRun                  bool      `json:"dry_run"`
	NotificationIDsToUpdate *[]string `json:"notification_ids_to_update,omitempty"`
	UpdatedNotificationIDs  *[]string `json:"updated_notification_ids,omitempty"`
	FailedNotificationIDs   *[]string `json:"failed_notification_ids,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Conversion helpers

// notificationResponse redacts secrets: auth tokens and webhook URLs are
// write-only at the API surface.
func notificationResponse(n domain.NotificationRecord) NotificationResponse {
	cfg := n.Config.Clone()
	if cfg.WorkItem != nil {
		cfg.WorkItem.AuthToken = ""
	}
	if cfg.Issue != nil {
		cfg.Issue.AuthToken = ""
	}
	if cfg.Webhook != nil {
		cfg.Webhook.URL = "***"
	}
	return NotificationResponse{
		ID:        n.ID,
		Container: n.Container,
		Kind:      string(n.Config.Kind()),
		Config:    cfg,
		Version:   n.Version,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func mapNotifications(in []domain.NotificationRecord) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(in))
	for _, n := range in {
		out = append(out, notificationResponse(n))
	}
	return out
}

func migrateResponse(dryRun bool, res engine.MigrationResult) MigrateTemplatesResponse {
	if dryRun {
		return MigrateTemplatesResponse{
			DryRun:                  true,
			NotificationIDsToUpdate: &res.NotificationIDsToUpdate,
		}
	}
	return MigrateTemplatesResponse{
		UpdatedNotificationIDs: &res.UpdatedNotificationIDs,
		FailedNotificationIDs:  &res.FailedNotificationIDs,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse(e)
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, eventResponse(e))
	}
	return out
}
