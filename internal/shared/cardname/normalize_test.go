package cardname

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"Lightning Bolt", "lightning bolt"},
		{"  lightning   BOLT ", "lightning bolt"},
		{"Jace, the Mind Sculptor", "jace the mind sculptor"},
		{"Lim-Dûl's Vault", "limduls vault"},
		{"Fire // Ice", "fire ice"},
		{"Æther Vial", "æther vial"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if got := Key("Lightning Bolt", ""); got != "lightning bolt" {
		t.Errorf("unexpected key without set: %q", got)
	}
	if got := Key("Lightning Bolt", " M11 "); got != "lightning bolt|m11" {
		t.Errorf("unexpected key with set: %q", got)
	}
	if Key("lightning bolt", "") != Key("LIGHTNING   Bolt!", "") {
		t.Error("expected equivalent names to share a key")
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	if !Equal("Brainstorm", "brainstorm.") {
		t.Error("expected names to be equal after normalization")
	}
	if Equal("", "") {
		t.Error("empty names must never be equal")
	}
	if Equal("Brainstorm", "Brainstrom") {
		t.Error("typo must not normalize to the same name")
	}
}
