package hotkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Modifier names after normalisation.
const (
	keyCtrl  = "ctrl"
	keyAlt   = "alt"
	keyShift = "shift"
	keyCmd   = "cmd"
)

var keyAliases = map[string]string{
	"control": keyCtrl,
	"win":     keyCmd,
	"super":   keyCmd,
	"meta":    keyCmd,
	"return":  "enter",
	"escape":  "esc",
	"del":     "delete",
	"ins":     "insert",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
}

// rawcodes maps a normalised key name to its Windows virtual-key codes, which
// is what gohook reports in Event.Rawcode. Modifiers carry both left and
// right variants.
var rawcodes = buildRawcodes()

func buildRawcodes() map[string][]uint16 {
	t := map[string][]uint16{
		keyCtrl:  {162, 163}, // VK_LCONTROL, VK_RCONTROL
		keyAlt:   {164, 165}, // VK_LMENU, VK_RMENU
		keyShift: {160, 161}, // VK_LSHIFT, VK_RSHIFT
		keyCmd:   {91, 92},   // VK_LWIN, VK_RWIN

		"space":     {32},
		"enter":     {13},
		"esc":       {27},
		"tab":       {9},
		"backspace": {8},
		"delete":    {46},
		"insert":    {45},
		"home":      {36},
		"end":       {35},
		"pageup":    {33},
		"pagedown":  {34},
		"left":      {37},
		"up":        {38},
		"right":     {39},
		"down":      {40},
	}
	for c := 'a'; c <= 'z'; c++ {
		t[string(c)] = []uint16{uint16('A' + (c - 'a'))}
	}
	for d := 0; d <= 9; d++ {
		t[strconv.Itoa(d)] = []uint16{uint16('0' + d)}
	}
	for f := 1; f <= 24; f++ {
		t["f"+strconv.Itoa(f)] = []uint16{uint16(111 + f)} // VK_F1 = 112
	}
	return t
}

func isModifier(key string) bool {
	switch key {
	case keyCtrl, keyAlt, keyShift, keyCmd:
		return true
	}
	return false
}

// normalizeKey lowercases, trims, and resolves aliases.
func normalizeKey(part string) string {
	k := strings.ToLower(strings.TrimSpace(part))
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// keyRawcodes returns the rawcodes for a key name, or nil when unknown.
func keyRawcodes(key string) []uint16 {
	return rawcodes[normalizeKey(key)]
}

// ParseCombo turns a combo like "Ctrl+Alt+S" into normalised key names. A
// valid combo has no empty or duplicate parts, only known keys, and at least
// one non-modifier key.
func ParseCombo(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, fmt.Errorf("empty combo")
	}

	parts := strings.Split(combo, "+")
	keys := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	hasKey := false
	for _, part := range parts {
		k := normalizeKey(part)
		if k == "" {
			return nil, fmt.Errorf("empty key in %q", combo)
		}
		if _, ok := rawcodes[k]; !ok {
			return nil, fmt.Errorf("unknown key %q", strings.TrimSpace(part))
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate key %q", k)
		}
		seen[k] = true
		if !isModifier(k) {
			hasKey = true
		}
		keys = append(keys, k)
	}
	if !hasKey {
		return nil, fmt.Errorf("combo %q has no non-modifier key", combo)
	}
	return keys, nil
}

// Normalize returns the canonical "ctrl+alt+s" form of combo.
func Normalize(combo string) (string, error) {
	keys, err := ParseCombo(combo)
	if err != nil {
		return "", err
	}
	return strings.Join(keys, "+"), nil
}
