package domain

import (
	"errors"
	"fmt"
)

// NotificationRecord is a persisted notification configuration plus its
// concurrency metadata. Version is an opaque token regenerated on every write;
// an update must present the token it read (compare-and-swap).
type NotificationRecord struct {
	ID        string `json:"id"`
	Container string `json:"container"`
	Config    Config `json:"config"`
	Version   string `json:"version"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// ConfigKind names one of the closed set of notification channel shapes.
type ConfigKind string

const (
	KindWorkItem ConfigKind = "work_item"
	KindIssue    ConfigKind = "issue"
	KindWebhook  ConfigKind = "webhook"
)

// Config is a closed sum over the known channel kinds: exactly one of the
// variant pointers is set. New variants must be added here and in fields.go.
type Config struct {
	WorkItem *WorkItemTemplate `json:"work_item,omitempty"`
	Issue    *IssueTemplate    `json:"issue,omitempty"`
	Webhook  *WebhookConfig    `json:"webhook,omitempty"`
}

// WorkItemTemplate drives work-item tracker notifications. Project, Type,
// Comment, the Fields values and the OnDuplicate comment/fields are template
// strings; everything else is plain configuration.
type WorkItemTemplate struct {
	BaseURL      string            `json:"base_url"`
	AuthToken    string            `json:"auth_token,omitempty"`
	Project      string            `json:"project"`
	Type         string            `json:"type"`
	Comment      string            `json:"comment,omitempty"`
	UniqueFields []string          `json:"unique_fields,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	OnDuplicate  WorkItemDuplicate `json:"on_duplicate"`
}

type WorkItemDuplicate struct {
	Comment   string            `json:"comment,omitempty"`
	SetState  string            `json:"set_state,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Increment []string          `json:"increment,omitempty"`
}

// IssueTemplate drives issue-tracker notifications. Every string field except
// AuthToken is a template string.
type IssueTemplate struct {
	AuthToken    string         `json:"auth_token,omitempty"`
	Organization string         `json:"organization"`
	Repository   string         `json:"repository"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	UniqueSearch IssueSearch    `json:"unique_search"`
	Assignees    []string       `json:"assignees,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	OnDuplicate  IssueDuplicate `json:"on_duplicate"`
}

type IssueSearch struct {
	Author string `json:"author,omitempty"`
	Query  string `json:"query,omitempty"`
}

type IssueDuplicate struct {
	Comment string   `json:"comment,omitempty"`
	Labels  []string `json:"labels,omitempty"`
	Reopen  bool     `json:"reopen,omitempty"`
}

// WebhookConfig posts to an opaque endpoint. The URL is a secret, not a
// template; records of this kind never take part in template migration.
type WebhookConfig struct {
	URL string `json:"url"`
}

// Kind reports which variant is set, or "" when none is.
func (c Config) Kind() ConfigKind {
	switch {
	case c.WorkItem != nil:
		return KindWorkItem
	case c.Issue != nil:
		return KindIssue
	case c.Webhook != nil:
		return KindWebhook
	}
	return ""
}

// Validate ensures exactly one variant is set with its required fields.
func (c Config) Validate() error {
	set := 0
	if c.WorkItem != nil {
		set++
	}
	if c.Issue != nil {
		set++
	}
	if c.Webhook != nil {
		set++
	}
	if set == 0 {
		return errors.New("config requires one of work_item, issue, webhook")
	}
	if set > 1 {
		return errors.New("config must set exactly one channel")
	}
	switch c.Kind() {
	case KindWorkItem:
		if c.WorkItem.Project == "" {
			return errors.New("work_item.project is required")
		}
		if c.WorkItem.Type == "" {
			return errors.New("work_item.type is required")
		}
	case KindIssue:
		if c.Issue.Organization == "" || c.Issue.Repository == "" {
			return errors.New("issue.organization and issue.repository are required")
		}
		if c.Issue.Title == "" {
			return errors.New("issue.title is required")
		}
	case KindWebhook:
		if c.Webhook.URL == "" {
			return errors.New("webhook.url is required")
		}
	default:
		return fmt.Errorf("unknown config kind %q", c.Kind())
	}
	return nil
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
