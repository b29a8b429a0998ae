package efficiency

import "testing"

func TestPolicyIncluded(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		deny  []string
		item  string
		want  bool
		mode  string
	}{
		{"empty policy includes all", nil, nil, "Ore", true, "all"},
		{"deny list excludes", nil, []string{"Ore"}, "Ore", false, "deny"},
		{"deny list passes others", nil, []string{"Ore"}, "Gem", true, "deny"},
		{"allow list includes member", []string{"Ore"}, nil, "Ore", true, "allow"},
		{"allow list excludes others", []string{"Ore"}, nil, "Gem", false, "allow"},
		{"allow wins over deny", []string{"Ore"}, []string{"Ore"}, "Ore", true, "allow"},
		{"deny ignored when allow set", []string{"Ore"}, []string{"Gem"}, "Gem", false, "allow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(tt.allow, tt.deny)
			if got := p.Included(tt.item); got != tt.want {
				t.Errorf("Included(%q) = %v, want %v", tt.item, got, tt.want)
			}
			if got := p.Mode(); got != tt.mode {
				t.Errorf("Mode() = %q, want %q", got, tt.mode)
			}
		})
	}
}

func TestPolicyCopiesLists(t *testing.T) {
	deny := []string{"Ore"}
	p := NewPolicy(nil, deny)
	deny[0] = "Gem"

	if p.Included("Ore") {
		t.Error("policy changed after caller mutated its slice")
	}
	if got := p.Denied(); len(got) != 1 || got[0] != "Ore" {
		t.Errorf("Denied() = %v", got)
	}
}

func TestZeroPolicyIncludesEverything(t *testing.T) {
	var p Policy
	if !p.Included("anything") {
		t.Error("zero Policy should include every item")
	}
	if len(p.Allowed()) != 0 || len(p.Denied()) != 0 {
		t.Error("zero Policy should have empty lists")
	}
}
