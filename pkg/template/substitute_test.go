package template

import (
	"testing"
	"time"
)

func TestSubstituteReplacesKnownVariables(t *testing.T) {
	r := NewResolver(map[string]any{"project_name": "widgets"}, nil, "", nil, time.Now())
	out := Substitute("# {{project_name}} README", r)
	if out != "# widgets README" {
		t.Fatalf("got %q", out)
	}
}

func TestSubstituteLeavesUnresolvedPlaceholdersLiteral(t *testing.T) {
	r := NewResolver(nil, nil, "", nil, time.Now())
	out := Substitute("hello {{unknown_var}}", r)
	if out != "hello {{unknown_var}}" {
		t.Fatalf("got %q", out)
	}
}

func TestSubstituteMultipleOccurrences(t *testing.T) {
	r := NewResolver(map[string]any{"name": "Ada"}, nil, "", nil, time.Now())
	out := Substitute("{{name}} and {{name}} again", r)
	if out != "Ada and Ada again" {
		t.Fatalf("got %q", out)
	}
}

func TestListVariablesDedupsInOrder(t *testing.T) {
	names := ListVariables("{{b}} {{a}} {{b}} {{c}}")
	want := []string{"b", "a", "c"}
	if len(names) != len(want) {
		t.Fatalf("got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestListVariablesEmptyWhenNoneReferenced(t *testing.T) {
	if names := ListVariables("plain text, no placeholders"); len(names) != 0 {
		t.Fatalf("got %v", names)
	}
}

func TestBracesBalanced(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"{{a}} {{b}}", true},
		{"{{a}", false},
		{"no braces here", true},
		{"{{a}} {{b", false},
	}
	for _, c := range cases {
		if got := BracesBalanced(c.in); got != c.want {
			t.Errorf("BracesBalanced(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
