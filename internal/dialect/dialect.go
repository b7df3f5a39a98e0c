// Package dialect rewrites notification template strings from the legacy
// control-tag syntax ({% if x %} ... {% endif %}) to the target syntax
// ({{ if x }} ... {{ end }}).
package dialect

import "strings"

const legacyMarker = "{%"

// IsLegacy reports whether s contains a legacy directive marker. It is the
// sole migration-eligibility gate: a fully migrated string contains no marker,
// so repeated runs converge. A literal that merely contains the marker
// characters counts as eligible; that matches the behavior of the system this
// replaces and is accepted.
func IsLegacy(s string) bool {
	return strings.Contains(s, legacyMarker)
}

var rewriter = strings.NewReplacer(
	"{% endif %}", "{{ end }}",
	"{%- endif %}", "{{ end }}",
	"{% endfor %}", "{{ end }}",
	"{%- endfor %}", "{{ end }}",
	"{% else %}", "{{ else }}",
	"{% if", "{{ if",
	"{%- if", "{{ if",
	"{% for", "{{ for",
	"{%- for", "{{ for",
	"{%", "{{",
	"%}", "}}",
)

// Adapt rewrites every legacy delimiter in s to its target equivalent,
// preserving all literal text byte for byte. It is total and referentially
// transparent, and a no-op on strings without legacy markers.
func Adapt(s string) string {
	if !IsLegacy(s) {
		return s
	}
	return rewriter.Replace(s)
}
