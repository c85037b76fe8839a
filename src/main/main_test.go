package main

import (
	"bytes"
	"testing"

	"screen-reader-llm/src/control"
	"screen-reader-llm/src/mailbox"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"screen-reader", "-headless", "-api-key-path", "/tmp/key"},
			out:  []string{"screen-reader", "--headless", "--api-key-path", "/tmp/key"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"screen-reader", "-hotkey=ctrl+alt+r", "-model=gpt-4-turbo"},
			out:  []string{"screen-reader", "--hotkey=ctrl+alt+r", "--model=gpt-4-turbo"},
		},
		{
			name: "Leaves other flags and subcommands unchanged",
			in:   []string{"screen-reader", "status", "--json", "-x"},
			out:  []string{"screen-reader", "status", "--json", "-x"},
		},
		{
			name: "Does not touch prefixes of known flags",
			in:   []string{"screen-reader", "-headlessly"},
			out:  []string{"screen-reader", "-headlessly"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("Expected len=%d, got %d", len(tt.out), len(got))
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Fatalf("Expected arg[%d]=%q, got %q", i, tt.out[i], got[i])
				}
			}
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--headless", "--no-context", "--api-key-path", "/tmp/key", "--hotkey", "ctrl+alt+r", "--model", "gpt-4-turbo"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if !opts.headless || !opts.noContext {
		t.Fatal("Expected headless and noContext to be true")
	}
	lo := opts.loadOptions()
	if lo.APIKeyPathOverride != "/tmp/key" {
		t.Fatalf("Expected apiKeyPath=/tmp/key, got %q", lo.APIKeyPathOverride)
	}
	if lo.HotkeyOverride != "ctrl+alt+r" || lo.ModelOverride != "gpt-4-turbo" {
		t.Fatalf("Unexpected overrides: %+v", lo)
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := newRootCmd(&mainOptions{})
	for _, name := range []string{"trigger", "clear", "status", "check"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("Expected subcommand %q, got %v (err=%v)", name, sub, err)
		}
	}
}

func TestConsoleRenderer(t *testing.T) {
	var buf bytes.Buffer
	consoleRenderer(&buf)([]mailbox.Event{
		mailbox.LogEvent("AI: R"),
		mailbox.StatusEvent("Ready"),
	})
	if got, want := buf.String(), "AI: R\n[Ready]\n"; got != want {
		t.Errorf("Expected output to be %q, got %q", want, got)
	}
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	st := control.Status{State: "listening", Combo: "ctrl+alt+s", Model: "gpt-4o", History: 4}
	if err := printStatus(&buf, st, false); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	want := "State:   listening\nHotkey:  ctrl+alt+s\nModel:   gpt-4o\nHistory: 4 turns\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}

	buf.Reset()
	if err := printStatus(&buf, control.Status{State: "idle"}, true); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"state": "idle"`)) {
		t.Errorf("Expected JSON output, got %q", buf.String())
	}
}
