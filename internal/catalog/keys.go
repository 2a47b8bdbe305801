package catalog

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Modifier is a key held down while the primary key is pressed
type Modifier string

const (
	ModCtrl  Modifier = "Ctrl"
	ModAlt   Modifier = "Alt"
	ModShift Modifier = "Shift"
	ModCmd   Modifier = "Cmd"
)

// modifierOrder fixes the canonical rendering order
var modifierOrder = []Modifier{ModCmd, ModCtrl, ModAlt, ModShift}

var modifierAliases = map[string]Modifier{
	"cmd":     ModCmd,
	"command": ModCmd,
	"meta":    ModCmd,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
}

var namedKeys = map[string]string{
	"enter":     "Enter",
	"return":    "Enter",
	"tab":       "Tab",
	"esc":       "Esc",
	"escape":    "Esc",
	"space":     "Space",
	"backspace": "Backspace",
	"delete":    "Delete",
	"del":       "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
	"plus":      "Plus",
}

func init() {
	for i := 1; i <= 12; i++ {
		namedKeys[fmt.Sprintf("f%d", i)] = fmt.Sprintf("F%d", i)
	}
}

// KeyCombination is a parsed shortcut such as "Cmd+Shift+A" or "N+L".
//
// Modifiers form a set; Leaders are keys pressed in order before the chord;
// Key is the primary key in canonical form (letters upper case).
type KeyCombination struct {
	modifiers []Modifier
	leaders   []string
	key       string
}

// ParseKeyCombination parses a "+"-joined key specification.
// The last token is the primary key. Earlier tokens are modifiers when they
// name one, otherwise leader keys of a sequence.
func ParseKeyCombination(spec string) (KeyCombination, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return KeyCombination{}, fmt.Errorf("empty key combination")
	}

	tokens := strings.Split(spec, "+")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
		if tokens[i] == "" {
			return KeyCombination{}, fmt.Errorf("empty token at position %d in %q", i+1, spec)
		}
	}

	last := tokens[len(tokens)-1]
	if _, isMod := modifierAliases[strings.ToLower(last)]; isMod {
		return KeyCombination{}, fmt.Errorf("%q ends with a modifier, expected a primary key", spec)
	}
	key, err := normalizeKey(last)
	if err != nil {
		return KeyCombination{}, err
	}

	seen := make(map[Modifier]bool)
	var leaders []string
	for _, tok := range tokens[:len(tokens)-1] {
		if mod, ok := modifierAliases[strings.ToLower(tok)]; ok {
			if seen[mod] {
				return KeyCombination{}, fmt.Errorf("modifier %s repeated in %q", mod, spec)
			}
			seen[mod] = true
			continue
		}
		leader, err := normalizeKey(tok)
		if err != nil {
			return KeyCombination{}, err
		}
		leaders = append(leaders, leader)
	}

	var mods []Modifier
	for _, m := range modifierOrder {
		if seen[m] {
			mods = append(mods, m)
		}
	}

	return KeyCombination{modifiers: mods, leaders: leaders, key: key}, nil
}

// MustParseKeyCombination is ParseKeyCombination for literals known to be valid
func MustParseKeyCombination(spec string) KeyCombination {
	kc, err := ParseKeyCombination(spec)
	if err != nil {
		panic(err)
	}
	return kc
}

func normalizeKey(tok string) (string, error) {
	if utf8.RuneCountInString(tok) == 1 {
		return strings.ToUpper(tok), nil
	}
	if named, ok := namedKeys[strings.ToLower(tok)]; ok {
		return named, nil
	}
	return "", fmt.Errorf("unknown key %q", tok)
}

// Modifiers returns the modifier set in canonical order
func (k KeyCombination) Modifiers() []Modifier {
	return append([]Modifier(nil), k.modifiers...)
}

// Leaders returns the keys pressed before the chord, in order
func (k KeyCombination) Leaders() []string {
	return append([]string(nil), k.leaders...)
}

// Key returns the primary key
func (k KeyCombination) Key() string { return k.key }

// HasModifier reports whether m is part of the chord
func (k KeyCombination) HasModifier(m Modifier) bool {
	for _, have := range k.modifiers {
		if have == m {
			return true
		}
	}
	return false
}

// IsZero reports whether k was never parsed
func (k KeyCombination) IsZero() bool { return k.key == "" }

// Equal compares two combinations: modifiers as a set, leaders in order,
// primary key case-insensitively
func (k KeyCombination) Equal(o KeyCombination) bool {
	return k.String() == o.String()
}

// String renders the canonical form, e.g. "Cmd+Shift+A" or "N+L"
func (k KeyCombination) String() string {
	parts := make([]string, 0, len(k.modifiers)+len(k.leaders)+1)
	parts = append(parts, k.leaders...)
	for _, m := range k.modifiers {
		parts = append(parts, string(m))
	}
	parts = append(parts, k.key)
	return strings.Join(parts, "+")
}

// MarshalText implements encoding.TextMarshaler
func (k KeyCombination) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *KeyCombination) UnmarshalText(b []byte) error {
	parsed, err := ParseKeyCombination(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
