package password

import "testing"

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		password string
		failures int
	}{
		{"Abcdef1!", 0},
		{"Abcdef1_", 0},
		{"Ab1!", 1},
		{"abcdefg1!", 1},
		{"ABCDEFG1!", 1},
		{"Abcdefgh!", 1},
		{"Abcdefgh1", 1},
		{"", 5},
		{"Pässwört1!", 0},
	}
	for _, tc := range cases {
		got := p.Check(tc.password)
		if len(got) != tc.failures {
			t.Fatalf("Check(%q): expected %d failures, got %v", tc.password, tc.failures, got)
		}
	}
}
