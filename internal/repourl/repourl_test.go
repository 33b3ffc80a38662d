package repourl

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/acme/widgets", "acme/widgets"},
		{"https://github.com/acme/widgets.git", "acme/widgets"},
		{"https://github.com/acme/widgets/tree/main", "acme/widgets"},
		{"http://github.com/Acme/Widgets", "Acme/Widgets"},
		{"git@github.com:acme/widgets.git", "acme/widgets"},
		{"git@github.com:acme/widgets", "acme/widgets"},
		{"https://gitlab.example.com/team/project", "team/project"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeFallback(t *testing.T) {
	tests := []string{
		"",
		"not a url",
		"https://github.com/onlyowner",
		"https://github.com/",
		"git@github.com:",
		"::::",
	}
	for _, in := range tests {
		if got := Normalize(in); got != in {
			t.Errorf("Normalize(%q) = %q, want raw input back", in, got)
		}
	}
}

func TestSplit(t *testing.T) {
	owner, name, ok := Split("https://github.com/acme/widgets")
	if !ok || owner != "acme" || name != "widgets" {
		t.Errorf("Split returned (%q, %q, %v), want (acme, widgets, true)", owner, name, ok)
	}

	if _, _, ok := Split("not a url"); ok {
		t.Error("Split on garbage should report ok=false")
	}
}
