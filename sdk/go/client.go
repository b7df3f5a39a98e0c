package alertlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Alertline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Notification is the API notification model. Config is kept as raw JSON so
// the SDK does not chase the channel variants.
type Notification struct {
	ID        string          `json:"id"`
	Container string          `json:"container"`
	Kind      string          `json:"kind"`
	Config    json.RawMessage `json:"config"`
	Version   string          `json:"version"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// MigrationResult is the response of a template migration run. Dry-run
// populates NotificationIDsToUpdate, commit populates the other two.
type MigrationResult struct {
	DryRun                  bool     `json:"dry_run"`
	NotificationIDsToUpdate []string `json:"notification_ids_to_update"`
	UpdatedNotificationIDs  []string `json:"updated_notification_ids"`
	FailedNotificationIDs   []string `json:"failed_notification_ids"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateNotification stores a notification config for a container. config is
// marshalled as the channel variant object, e.g. {"issue": {...}}.
func (c *Client) CreateNotification(ctx context.Context, container string, config any) (Notification, error) {
	body := map[string]any{
		"container": container,
		"config":    config,
	}
	var resp Notification
	err := c.do(ctx, http.MethodPost, "v0/notifications", body, &resp)
	return resp, err
}

// ListNotifications returns all stored notification configs.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var resp []Notification
	err := c.do(ctx, http.MethodGet, "v0/notifications", nil, &resp)
	return resp, err
}

// GetNotification fetches one notification config by id.
func (c *Client) GetNotification(ctx context.Context, id string) (Notification, error) {
	var resp Notification
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/notifications/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// UpdateNotification replaces a notification config. version must be the token
// read from the record being replaced.
func (c *Client) UpdateNotification(ctx context.Context, id, version string, config any) (Notification, error) {
	body := map[string]any{
		"config":  config,
		"version": version,
	}
	var resp Notification
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("v0/notifications/%s", url.PathEscape(id)), body, &resp)
	return resp, err
}

// DeleteNotification removes a notification config.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/notifications/%s", url.PathEscape(id)), nil, nil)
}

// MigrateTemplates runs the template migration. With dryRun the server only
// reports which records would change.
func (c *Client) MigrateTemplates(ctx context.Context, dryRun bool) (MigrationResult, error) {
	body := map[string]any{
		"dry_run": dryRun,
	}
	var resp MigrationResult
	err := c.do(ctx, http.MethodPost, "v0/migrations/templates", body, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
