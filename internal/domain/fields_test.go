package domain

import (
	"reflect"
	"testing"
)

func sampleWorkItem() Config {
	return Config{WorkItem: &WorkItemTemplate{
		BaseURL:      "https://dev.example.com/org",
		AuthToken:    "secret",
		Project:      "MyProject",
		Type:         "Bug",
		Comment:      "new crash",
		UniqueFields: []string{"System.Title"},
		Fields: map[string]string{
			"System.Title":    "{{ report.task }}",
			"Custom.Severity": "high",
		},
		OnDuplicate: WorkItemDuplicate{
			Comment:   "seen again",
			SetState:  "Active",
			Fields:    map[string]string{"Custom.Count": "1"},
			Increment: []string{"Custom.Count"},
		},
	}}
}

func TestTemplateFieldsStableOrder(t *testing.T) {
	cfg := sampleWorkItem()
	fields, err := cfg.TemplateFields()
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	var locators []FieldLocator
	for _, f := range fields {
		locators = append(locators, f.Locator)
	}
	want := []FieldLocator{
		"project", "type", "comment",
		"fields[Custom.Severity]", "fields[System.Title]",
		"on_duplicate.comment",
		"on_duplicate.fields[Custom.Count]",
	}
	if !reflect.DeepEqual(locators, want) {
		t.Fatalf("locators = %v, want %v", locators, want)
	}

	// Repeated enumeration is byte-identical.
	again, err := cfg.TemplateFields()
	if err != nil {
		t.Fatalf("enumerate again: %v", err)
	}
	if !reflect.DeepEqual(fields, again) {
		t.Fatal("enumeration order is not stable")
	}
}

func TestWithTemplateFieldsPreservesEverythingElse(t *testing.T) {
	cfg := sampleWorkItem()
	out, err := cfg.WithTemplateFields(map[FieldLocator]string{
		"project":              "Renamed",
		"fields[System.Title]": "new title",
		"on_duplicate.comment": "updated comment",
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	w := out.WorkItem
	if w.Project != "Renamed" || w.Fields["System.Title"] != "new title" || w.OnDuplicate.Comment != "updated comment" {
		t.Fatalf("updates did not land: %+v", w)
	}
	if w.AuthToken != "secret" || w.BaseURL != "https://dev.example.com/org" || w.OnDuplicate.SetState != "Active" {
		t.Fatalf("plain attributes changed: %+v", w)
	}
	if w.Fields["Custom.Severity"] != "high" {
		t.Fatalf("untouched map entry changed: %q", w.Fields["Custom.Severity"])
	}
	if !reflect.DeepEqual(w.UniqueFields, []string{"System.Title"}) || !reflect.DeepEqual(w.OnDuplicate.Increment, []string{"Custom.Count"}) {
		t.Fatalf("list attributes changed: %+v", w)
	}

	// The receiver is untouched.
	if cfg.WorkItem.Project != "MyProject" || cfg.WorkItem.Fields["System.Title"] != "{{ report.task }}" {
		t.Fatalf("rebuild mutated the original: %+v", cfg.WorkItem)
	}
}

func TestWithTemplateFieldsUnknownLocator(t *testing.T) {
	cfg := sampleWorkItem()
	if _, err := cfg.WithTemplateFields(map[FieldLocator]string{"fields[NoSuchKey]": "x"}); err == nil {
		t.Fatal("expected error for unknown locator")
	}
	if _, err := cfg.WithTemplateFields(map[FieldLocator]string{"auth_token": "x"}); err == nil {
		t.Fatal("non-template attributes must not be addressable")
	}
}

func TestTemplateFieldsIssueVariant(t *testing.T) {
	cfg := Config{Issue: &IssueTemplate{
		Organization: "org",
		Repository:   "repo",
		Title:        "t",
		Body:         "b",
		Assignees:    []string{"alice", "bob"},
		Labels:       []string{"bug"},
		OnDuplicate:  IssueDuplicate{Labels: []string{"dup"}},
	}}
	fields, err := cfg.TemplateFields()
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	got := map[FieldLocator]string{}
	for _, f := range fields {
		got[f.Locator] = f.Value
	}
	if got["assignees[1]"] != "bob" || got["labels[0]"] != "bug" || got["on_duplicate.labels[0]"] != "dup" {
		t.Fatalf("list locators wrong: %v", got)
	}
	if got["unique_search.author"] != "" {
		t.Fatalf("unique_search.author = %q", got["unique_search.author"])
	}
}

func TestTemplateFieldsWebhookDeclaresNone(t *testing.T) {
	cfg := Config{Webhook: &WebhookConfig{URL: "https://hooks.example.com/x"}}
	fields, err := cfg.TemplateFields()
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("webhook configs carry no template fields, got %v", fields)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := sampleWorkItem()
	cp := cfg.Clone()
	cp.WorkItem.Fields["System.Title"] = "mutated"
	cp.WorkItem.UniqueFields[0] = "mutated"
	if cfg.WorkItem.Fields["System.Title"] == "mutated" || cfg.WorkItem.UniqueFields[0] == "mutated" {
		t.Fatal("clone shares storage with the original")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("empty config must not validate")
	}
	two := sampleWorkItem()
	two.Webhook = &WebhookConfig{URL: "https://x"}
	if err := two.Validate(); err == nil {
		t.Fatal("config with two channels must not validate")
	}
	if err := sampleWorkItem().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := (Config{Webhook: &WebhookConfig{}}).Validate(); err == nil {
		t.Fatal("webhook without url must not validate")
	}
}
