package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestEnvTruthyValues(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "one", value: "1", want: true},
		{name: "true", value: "TRUE", want: true},
		{name: "yes", value: " yes ", want: true},
		{name: "on", value: "on", want: true},
		{name: "zero", value: "0", want: false},
		{name: "false", value: "false", want: false},
		{name: "empty", value: "", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("WGENROLL_TEST_TRUTHY", tc.value)
			if got := envTruthy("WGENROLL_TEST_TRUTHY"); got != tc.want {
				t.Fatalf("envTruthy() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConfirmAnswers(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"maybe": false,
	} {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(input), &out, "Remove?")
		if err != nil {
			t.Fatalf("confirm(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("confirm(%q) = %v, want %v", input, got, want)
		}
		if !strings.Contains(out.String(), "Remove?") {
			t.Fatalf("prompt not written: %q", out.String())
		}
	}
}

func TestKeyValuesAligns(t *testing.T) {
	t.Parallel()

	out := KeyValues("", KV("IP", "10.77.0.2"), KV("Endpoint", "vpn:51820"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out)
	}
	if strings.Index(lines[0], "10.77.0.2") != strings.Index(lines[1], "vpn:51820") {
		t.Fatalf("values not aligned:\n%s", out)
	}
}
