package engine

import (
	"context"
	"testing"

	"alertline/internal/domain"
)

const (
	legacyProject  = "{% if org %} blah {% endif %}"
	adaptedProject = "{{ if org }} blah {{ end }}"
)

func createRecord(t *testing.T, e Engine, container string, cfg domain.Config) domain.NotificationRecord {
	t.Helper()
	n, err := e.CreateNotification(context.Background(), CreateNotificationOptions{
		Container: container,
		Config:    cfg,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return n
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestMigrateTemplatesDryRunReportsWithoutWriting(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	n := createRecord(t, e, "c", workItemConfig(legacyProject))

	res, err := e.MigrateTemplates(ctx, true, "tester")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !contains(res.NotificationIDsToUpdate, n.ID) {
		t.Fatalf("dry run must report %s, got %v", n.ID, res.NotificationIDsToUpdate)
	}
	if len(res.UpdatedNotificationIDs) != 0 || len(res.FailedNotificationIDs) != 0 {
		t.Fatalf("dry run must not populate commit buckets: %+v", res)
	}

	got, err := e.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Config.WorkItem.Project != legacyProject {
		t.Fatalf("dry run mutated stored config: %q", got.Config.WorkItem.Project)
	}
	if got.Version != n.Version {
		t.Fatal("dry run must not touch the version token")
	}
}

func TestMigrateTemplatesCommitRewritesLegacyFields(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	n := createRecord(t, e, "c", workItemConfig(legacyProject))

	res, err := e.MigrateTemplates(ctx, false, "tester")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !contains(res.UpdatedNotificationIDs, n.ID) {
		t.Fatalf("expected %s updated, got %+v", n.ID, res)
	}
	if len(res.FailedNotificationIDs) != 0 {
		t.Fatalf("unexpected failures: %v", res.FailedNotificationIDs)
	}

	got, err := e.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Config.WorkItem.Project != adaptedProject {
		t.Fatalf("project = %q, want %q", got.Config.WorkItem.Project, adaptedProject)
	}
	if got.Version == n.Version {
		t.Fatal("commit must rotate the version token")
	}
}

func TestMigrateTemplatesIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	createRecord(t, e, "c", workItemConfig(legacyProject))

	if _, err := e.MigrateTemplates(ctx, false, "tester"); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	res, err := e.MigrateTemplates(ctx, false, "tester")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(res.UpdatedNotificationIDs) != 0 || len(res.FailedNotificationIDs) != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", res)
	}
	res, err = e.MigrateTemplates(ctx, true, "tester")
	if err != nil {
		t.Fatalf("dry run after commit: %v", err)
	}
	if len(res.NotificationIDsToUpdate) != 0 {
		t.Fatalf("migrated records must not be reported again: %v", res.NotificationIDsToUpdate)
	}
}

func TestMigrateTemplatesSkipsModernAndWebhookRecords(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	legacy := createRecord(t, e, "c", workItemConfig(legacyProject))
	modern := createRecord(t, e, "c", workItemConfig("{{ if org }} ok {{ end }}"))
	hook := createRecord(t, e, "c", domain.Config{Webhook: &domain.WebhookConfig{
		URL: "https://hooks.example.com/secret-{%-looking-path",
	}})

	res, err := e.MigrateTemplates(ctx, true, "tester")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !contains(res.NotificationIDsToUpdate, legacy.ID) {
		t.Fatalf("legacy record missing from %v", res.NotificationIDsToUpdate)
	}
	if contains(res.NotificationIDsToUpdate, modern.ID) || contains(res.NotificationIDsToUpdate, hook.ID) {
		t.Fatalf("only legacy records may be reported: %v", res.NotificationIDsToUpdate)
	}

	if _, err := e.MigrateTemplates(ctx, false, "tester"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	gotHook, err := e.GetNotification(ctx, hook.ID)
	if err != nil {
		t.Fatalf("get webhook: %v", err)
	}
	if gotHook.Config.Webhook.URL != "https://hooks.example.com/secret-{%-looking-path" {
		t.Fatalf("webhook URL must never be rewritten, got %q", gotHook.Config.Webhook.URL)
	}
	if gotHook.Version != hook.Version {
		t.Fatal("webhook record must not be touched")
	}
}

func TestMigrateTemplatesRewritesEveryEligibleField(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cfg := domain.Config{Issue: &domain.IssueTemplate{
		AuthToken:    "secret",
		Organization: "{% if fork %}{{ fork_org }}{% endif %}",
		Repository:   "crashes",
		Title:        "{% for t in tags %}{{ t }}{% endfor %}",
		Body:         "plain text body",
		Labels:       []string{"bug", "{% if sev %}critical{% endif %}"},
		OnDuplicate: domain.IssueDuplicate{
			Comment: "{% if count %}seen again{% endif %}",
			Reopen:  true,
		},
	}}
	n := createRecord(t, e, "c", cfg)

	if _, err := e.MigrateTemplates(ctx, false, "tester"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := e.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	issue := got.Config.Issue
	if issue.Organization != "{{ if fork }}{{ fork_org }}{{ end }}" {
		t.Errorf("organization = %q", issue.Organization)
	}
	if issue.Title != "{{ for t in tags }}{{ t }}{{ end }}" {
		t.Errorf("title = %q", issue.Title)
	}
	if issue.Labels[1] != "{{ if sev }}critical{{ end }}" {
		t.Errorf("labels[1] = %q", issue.Labels[1])
	}
	if issue.OnDuplicate.Comment != "{{ if count }}seen again{{ end }}" {
		t.Errorf("on_duplicate.comment = %q", issue.OnDuplicate.Comment)
	}

	// Non-template attributes and untouched fields survive byte for byte.
	if issue.AuthToken != "secret" || issue.Repository != "crashes" {
		t.Errorf("plain attributes changed: %+v", issue)
	}
	if issue.Body != "plain text body" || issue.Labels[0] != "bug" {
		t.Errorf("unaffected fields changed: %+v", issue)
	}
	if !issue.OnDuplicate.Reopen {
		t.Error("on_duplicate.reopen flipped")
	}
}

func TestMigrateTemplatesIsolatesFailedRecords(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := createRecord(t, e, "c", workItemConfig(legacyProject))
	b := createRecord(t, e, "c", workItemConfig(legacyProject))

	// A row whose config decodes to no known channel cannot be planned; it must
	// fail without dragging the rest of the batch down.
	_, err := e.DB.ExecContext(ctx, `INSERT INTO notifications(id, container, config_kind, config_json, version, created_at, updated_at)
		VALUES ('broken', 'c', 'work_item', '{}', 'v0', '2026-08-01T00:00:00Z', '2026-08-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("seed broken row: %v", err)
	}

	res, err := e.MigrateTemplates(ctx, false, "tester")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !contains(res.UpdatedNotificationIDs, a.ID) || !contains(res.UpdatedNotificationIDs, b.ID) {
		t.Fatalf("healthy records must still migrate: %+v", res)
	}
	if !contains(res.FailedNotificationIDs, "broken") {
		t.Fatalf("broken record must be reported failed: %+v", res)
	}

	// Dry-run excludes unplannable records instead of failing them.
	res, err = e.MigrateTemplates(ctx, true, "tester")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(res.NotificationIDsToUpdate) != 0 || len(res.FailedNotificationIDs) != 0 {
		t.Fatalf("dry run after commit should report nothing, got %+v", res)
	}
}

func TestMigrateTemplatesIsolatesStaleVersionWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// All three records share a created_at (fixed clock), so the pass walks
	// them by id descending: z-first, m-second, b-third.
	for _, id := range []string{"z-first", "m-second", "b-third"} {
		if _, err := e.CreateNotification(ctx, CreateNotificationOptions{
			ID:        id,
			Container: "c",
			Config:    workItemConfig(legacyProject),
			ActorID:   "tester",
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	third, err := e.GetNotification(ctx, "b-third")
	if err != nil {
		t.Fatalf("get b-third: %v", err)
	}

	// A concurrent editor wins between load and write: committing the first
	// record rotates b-third's token out from under the pass.
	_, err = e.DB.ExecContext(ctx, `CREATE TRIGGER concurrent_edit AFTER UPDATE ON notifications
		WHEN NEW.id = 'z-first' BEGIN
			UPDATE notifications SET version = 'someone-else' WHERE id = 'b-third';
		END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	res, err := e.MigrateTemplates(ctx, false, "tester")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !contains(res.UpdatedNotificationIDs, "z-first") || !contains(res.UpdatedNotificationIDs, "m-second") {
		t.Fatalf("unaffected records must still migrate: %+v", res)
	}
	if !contains(res.FailedNotificationIDs, "b-third") {
		t.Fatalf("record with a stale token must be reported failed: %+v", res)
	}
	if contains(res.UpdatedNotificationIDs, "b-third") {
		t.Fatalf("a record lands in at most one bucket: %+v", res)
	}

	// The losing write must not land; the concurrent editor's state survives.
	got, err := e.GetNotification(ctx, "b-third")
	if err != nil {
		t.Fatalf("get b-third: %v", err)
	}
	if got.Config.WorkItem.Project != third.Config.WorkItem.Project {
		t.Fatalf("stale write landed anyway: %q", got.Config.WorkItem.Project)
	}
	if got.Version != "someone-else" {
		t.Fatalf("version = %q, want the concurrent editor's token", got.Version)
	}
}

func TestMigrateTemplatesSurvivesAuditFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	n := createRecord(t, e, "c", workItemConfig(legacyProject))
	if _, err := e.DB.ExecContext(ctx, `DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}

	res, err := e.MigrateTemplates(ctx, false, "tester")
	if err != nil {
		t.Fatalf("an unrecordable summary must not fail the pass: %v", err)
	}
	if !contains(res.UpdatedNotificationIDs, n.ID) {
		t.Fatalf("record not migrated: %+v", res)
	}
	got, err := e.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Config.WorkItem.Project != adaptedProject {
		t.Fatalf("project = %q", got.Config.WorkItem.Project)
	}
}

func TestMigrateTemplatesEmptyStore(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.MigrateTemplates(context.Background(), false, "tester")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(res.NotificationIDsToUpdate)+len(res.UpdatedNotificationIDs)+len(res.FailedNotificationIDs) != 0 {
		t.Fatalf("empty store must yield empty buckets: %+v", res)
	}
}

func TestMigrateTemplatesWritesSummaryEvent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	createRecord(t, e, "c", workItemConfig(legacyProject))
	if _, err := e.MigrateTemplates(ctx, false, "audit-user"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	evts, err := e.Repo.LatestEvents(ctx, 10, "notification.templates.migrated", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one summary event, got %d", len(evts))
	}
	if evts[0].ActorID != "audit-user" {
		t.Fatalf("actor = %q", evts[0].ActorID)
	}
}
