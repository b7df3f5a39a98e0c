package dialect

import "testing"

func TestAdaptConditional(t *testing.T) {
	in := "{% if org %} blah {% endif %}"
	want := "{{ if org }} blah {{ end }}"
	if got := Adapt(in); got != want {
		t.Fatalf("Adapt(%q) = %q, want %q", in, got, want)
	}
}

func TestAdaptLoop(t *testing.T) {
	in := "{% for report in reports %}{{ report.title }}\n{% endfor %}"
	want := "{{ for report in reports }}{{ report.title }}\n{{ end }}"
	if got := Adapt(in); got != want {
		t.Fatalf("Adapt(%q) = %q, want %q", in, got, want)
	}
}

func TestAdaptPreservesLiterals(t *testing.T) {
	cases := []string{
		"",
		"plain text, no directives",
		"{{ already.target }} syntax stays",
		"crash in {{ executable }} at {{ location }}",
	}
	for _, in := range cases {
		if got := Adapt(in); got != in {
			t.Fatalf("Adapt(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestAdaptIdempotent(t *testing.T) {
	in := "{% if x %}a{% else %}b{% endif %} tail {% for i in xs %}{{ i }}{% endfor %}"
	once := Adapt(in)
	if IsLegacy(once) {
		t.Fatalf("adapted string still detected as legacy: %q", once)
	}
	if twice := Adapt(once); twice != once {
		t.Fatalf("second pass changed output: %q -> %q", once, twice)
	}
}

func TestIsLegacy(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"no markers here", false},
		{"{{ target.expr }}", false},
		{"{% if x %}", true},
		{"literal containing {% only", true},
		{"tail {% endfor %}", true},
	}
	for _, tc := range cases {
		if got := IsLegacy(tc.in); got != tc.want {
			t.Fatalf("IsLegacy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
