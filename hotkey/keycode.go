package hotkey

import (
	"fmt"
	"strings"
)

// Virtual key codes follow the Mac keyboard layout; modifiers report both
// their left and right variants.
const (
	codeRightCmd    uint16 = 54
	codeLeftCmd     uint16 = 55
	codeLeftShift   uint16 = 56
	codeLeftOption  uint16 = 58
	codeLeftCtrl    uint16 = 59
	codeRightShift  uint16 = 60
	codeRightOption uint16 = 61
	codeRightCtrl   uint16 = 62
	codeFn          uint16 = 63

	// KeyEscape is exported for the overlay's systemwide cancel observer.
	KeyEscape uint16 = 53
)

func modifierBit(code uint16) (Mask, bool) {
	switch code {
	case codeLeftShift, codeRightShift:
		return ModShift, true
	case codeLeftCtrl, codeRightCtrl:
		return ModCtrl, true
	case codeLeftOption, codeRightOption:
		return ModOption, true
	case codeLeftCmd, codeRightCmd:
		return ModCmd, true
	case codeFn:
		return ModFn, true
	}
	return 0, false
}

// ParseChord converts a chord string like "Cmd+Shift+2" or a bare "Option"
// into a Spec. Modifier-only chords are allowed; an empty string is an error.
func ParseChord(chord string) (Spec, error) {
	var spec Spec
	parts := strings.Split(chord, "+")
	seenKey := false
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		switch part {
		case "shift":
			spec.Modifiers |= ModShift
		case "ctrl", "control":
			spec.Modifiers |= ModCtrl
		case "alt", "opt", "option":
			spec.Modifiers |= ModOption
		case "cmd", "command", "super", "win":
			spec.Modifiers |= ModCmd
		case "fn":
			spec.Modifiers |= ModFn
		default:
			if seenKey {
				return Spec{}, fmt.Errorf("chord %q has more than one non-modifier key", chord)
			}
			code, ok := nameToKeyCode(part)
			if !ok {
				return Spec{}, fmt.Errorf("unknown key %q in chord %q", part, chord)
			}
			c := code
			spec.KeyCode = &c
			seenKey = true
		}
	}
	if spec.KeyCode == nil && spec.Modifiers == 0 {
		return Spec{}, fmt.Errorf("empty chord %q", chord)
	}
	return spec, nil
}

func nameToKeyCode(name string) (uint16, bool) {
	switch name {
	case "a":
		return 0, true
	case "s":
		return 1, true
	case "d":
		return 2, true
	case "f":
		return 3, true
	case "h":
		return 4, true
	case "g":
		return 5, true
	case "z":
		return 6, true
	case "x":
		return 7, true
	case "c":
		return 8, true
	case "v":
		return 9, true
	case "b":
		return 11, true
	case "q":
		return 12, true
	case "w":
		return 13, true
	case "e":
		return 14, true
	case "r":
		return 15, true
	case "y":
		return 16, true
	case "t":
		return 17, true
	case "1":
		return 18, true
	case "2":
		return 19, true
	case "3":
		return 20, true
	case "4":
		return 21, true
	case "6":
		return 22, true
	case "5":
		return 23, true
	case "equal", "=":
		return 24, true
	case "9":
		return 25, true
	case "7":
		return 26, true
	case "minus", "-":
		return 27, true
	case "8":
		return 28, true
	case "0":
		return 29, true
	case "o":
		return 31, true
	case "u":
		return 32, true
	case "i":
		return 34, true
	case "p":
		return 35, true
	case "enter", "return":
		return 36, true
	case "l":
		return 37, true
	case "j":
		return 38, true
	case "k":
		return 40, true
	case "n":
		return 45, true
	case "m":
		return 46, true
	case "tab":
		return 48, true
	case "space":
		return 49, true
	case "delete", "backspace":
		return 51, true
	case "esc", "escape":
		return 53, true
	case "f1":
		return 122, true
	case "f2":
		return 120, true
	case "f3":
		return 99, true
	case "f4":
		return 118, true
	case "f5":
		return 96, true
	case "f6":
		return 97, true
	case "f7":
		return 98, true
	case "f8":
		return 100, true
	case "f9":
		return 101, true
	case "f10":
		return 109, true
	case "f11":
		return 103, true
	case "f12":
		return 111, true
	case "left":
		return 123, true
	case "right":
		return 124, true
	case "down":
		return 125, true
	case "up":
		return 126, true
	}
	return 0, false
}
