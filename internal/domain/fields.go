package domain

import (
	"fmt"
	"sort"
)

// FieldLocator identifies one template string within a Config variant: a
// top-level scalar ("title"), a mapping value ("fields[Severity]"), a list
// entry ("labels[2]") or a field inside a nested sub-object
// ("on_duplicate.comment").
type FieldLocator string

// TemplateField pairs a locator with the current value of that field.
type TemplateField struct {
	Locator FieldLocator
	Value   string
}

// fieldRef binds one template string inside a concrete Config value so the
// same enumeration serves both extraction and rebuild. Map values are not
// addressable in Go, hence closures rather than pointers.
type fieldRef struct {
	locator FieldLocator
	get     func() string
	set     func(string)
}

func scalarRef(loc FieldLocator, p *string) fieldRef {
	return fieldRef{loc, func() string { return *p }, func(v string) { *p = v }}
}

func mapEntryRef(loc FieldLocator, m map[string]string, k string) fieldRef {
	return fieldRef{loc, func() string { return m[k] }, func(v string) { m[k] = v }}
}

// TemplateFields returns the variant's declared template fields in a stable
// order. Webhook configs declare none. The enumeration is explicit and closed:
// a new variant or field must be added to fieldRefs below, nothing is
// discovered reflectively.
func (c Config) TemplateFields() ([]TemplateField, error) {
	clone := c.Clone()
	refs, err := clone.fieldRefs()
	if err != nil {
		return nil, err
	}
	out := make([]TemplateField, 0, len(refs))
	for _, ref := range refs {
		out = append(out, TemplateField{Locator: ref.locator, Value: ref.get()})
	}
	return out, nil
}

// WithTemplateFields returns a new Config with the given locator->value
// updates applied. Every non-template attribute, mapping key set and list
// order is preserved exactly; an unknown locator is an error.
func (c Config) WithTemplateFields(updates map[FieldLocator]string) (Config, error) {
	out := c.Clone()
	refs, err := out.fieldRefs()
	if err != nil {
		return Config{}, err
	}
	byLocator := make(map[FieldLocator]fieldRef, len(refs))
	for _, ref := range refs {
		byLocator[ref.locator] = ref
	}
	for loc, val := range updates {
		ref, ok := byLocator[loc]
		if !ok {
			return Config{}, fmt.Errorf("no template field at %q", loc)
		}
		ref.set(val)
	}
	return out, nil
}

func (c *Config) fieldRefs() ([]fieldRef, error) {
	switch c.Kind() {
	case KindWorkItem:
		return c.WorkItem.fieldRefs(), nil
	case KindIssue:
		return c.Issue.fieldRefs(), nil
	case KindWebhook:
		return nil, nil
	}
	return nil, fmt.Errorf("config declares no channel")
}

func (t *WorkItemTemplate) fieldRefs() []fieldRef {
	refs := []fieldRef{
		scalarRef("project", &t.Project),
		scalarRef("type", &t.Type),
		scalarRef("comment", &t.Comment),
	}
	for _, k := range sortedKeys(t.Fields) {
		refs = append(refs, mapEntryRef(FieldLocator(fmt.Sprintf("fields[%s]", k)), t.Fields, k))
	}
	refs = append(refs, scalarRef("on_duplicate.comment", &t.OnDuplicate.Comment))
	for _, k := range sortedKeys(t.OnDuplicate.Fields) {
		refs = append(refs, mapEntryRef(FieldLocator(fmt.Sprintf("on_duplicate.fields[%s]", k)), t.OnDuplicate.Fields, k))
	}
	return refs
}

func (t *IssueTemplate) fieldRefs() []fieldRef {
	refs := []fieldRef{
		scalarRef("organization", &t.Organization),
		scalarRef("repository", &t.Repository),
		scalarRef("title", &t.Title),
		scalarRef("body", &t.Body),
		scalarRef("unique_search.author", &t.UniqueSearch.Author),
		scalarRef("unique_search.query", &t.UniqueSearch.Query),
	}
	for i := range t.Assignees {
		refs = append(refs, scalarRef(FieldLocator(fmt.Sprintf("assignees[%d]", i)), &t.Assignees[i]))
	}
	for i := range t.Labels {
		refs = append(refs, scalarRef(FieldLocator(fmt.Sprintf("labels[%d]", i)), &t.Labels[i]))
	}
	refs = append(refs, scalarRef("on_duplicate.comment", &t.OnDuplicate.Comment))
	for i := range t.OnDuplicate.Labels {
		refs = append(refs, scalarRef(FieldLocator(fmt.Sprintf("on_duplicate.labels[%d]", i)), &t.OnDuplicate.Labels[i]))
	}
	return refs
}

// Clone returns a deep copy; the copy shares no maps or slices with the
// original.
func (c Config) Clone() Config {
	var out Config
	if c.WorkItem != nil {
		w := *c.WorkItem
		w.UniqueFields = cloneSlice(c.WorkItem.UniqueFields)
		w.Fields = cloneMap(c.WorkItem.Fields)
		w.OnDuplicate.Fields = cloneMap(c.WorkItem.OnDuplicate.Fields)
		w.OnDuplicate.Increment = cloneSlice(c.WorkItem.OnDuplicate.Increment)
		out.WorkItem = &w
	}
	if c.Issue != nil {
		i := *c.Issue
		i.Assignees = cloneSlice(c.Issue.Assignees)
		i.Labels = cloneSlice(c.Issue.Labels)
		i.OnDuplicate.Labels = cloneSlice(c.Issue.OnDuplicate.Labels)
		out.Issue = &i
	}
	if c.Webhook != nil {
		w := *c.Webhook
		out.Webhook = &w
	}
	return out
}

func cloneSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
