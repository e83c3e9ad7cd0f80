//go:build linux

package input

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// evdevNames maps key table names whose evdev spelling is not KEY_<NAME>.
var evdevNames = map[string]string{
	"Back":             "KEY_BACKSPACE",
	"Return":           "KEY_ENTER",
	"Capital":          "KEY_CAPSLOCK",
	"Escape":           "KEY_ESC",
	"PrintScreen":      "KEY_SYSRQ",
	"LWin":             "KEY_LEFTMETA",
	"RWin":             "KEY_RIGHTMETA",
	"Apps":             "KEY_COMPOSE",
	"Multiply":         "KEY_KPASTERISK",
	"Add":              "KEY_KPPLUS",
	"Separator":        "KEY_KPCOMMA",
	"Subtract":         "KEY_KPMINUS",
	"Decimal":          "KEY_KPDOT",
	"Divide":           "KEY_KPSLASH",
	"Scroll":           "KEY_SCROLLLOCK",
	"LShiftKey":        "KEY_LEFTSHIFT",
	"RShiftKey":        "KEY_RIGHTSHIFT",
	"LControlKey":      "KEY_LEFTCTRL",
	"RControlKey":      "KEY_RIGHTCTRL",
	"LMenu":            "KEY_LEFTALT",
	"RMenu":            "KEY_RIGHTALT",
	"OemSemicolon":     "KEY_SEMICOLON",
	"Oemplus":          "KEY_EQUAL",
	"Oemcomma":         "KEY_COMMA",
	"OemMinus":         "KEY_MINUS",
	"OemPeriod":        "KEY_DOT",
	"OemQuestion":      "KEY_SLASH",
	"Oemtilde":         "KEY_GRAVE",
	"OemOpenBrackets":  "KEY_LEFTBRACE",
	"OemPipe":          "KEY_BACKSLASH",
	"OemCloseBrackets": "KEY_RIGHTBRACE",
	"OemQuotes":        "KEY_APOSTROPHE",
}

var (
	codeByInput map[LogicalInput]evdev.EvCode
	inputByCode map[evdev.EvCode]LogicalInput
)

func init() {
	codeByInput = make(map[LogicalInput]evdev.EvCode, len(keyTable)+len(mouseTable))
	inputByCode = make(map[evdev.EvCode]LogicalInput, len(keyTable)+len(mouseTable))

	for _, k := range keyTable {
		code, ok := evdev.KEYFromString[evdevKeyName(k.name)]
		if !ok {
			continue
		}
		in := Key(k.name)
		codeByInput[in] = code
		inputByCode[code] = in
	}

	buttons := map[string]evdev.EvCode{
		LButton: evdev.BTN_LEFT,
		RButton: evdev.BTN_RIGHT,
		MButton: evdev.BTN_MIDDLE,
	}
	for name, code := range buttons {
		in := Button(name)
		codeByInput[in] = code
		inputByCode[code] = in
	}
}

func evdevKeyName(name string) string {
	if mapped, ok := evdevNames[name]; ok {
		return mapped
	}
	var digit int
	if _, err := fmt.Sscanf(name, "NumPad%d", &digit); err == nil {
		return fmt.Sprintf("KEY_KP%d", digit)
	}
	if len(name) == 2 && name[0] == 'D' && name[1] >= '0' && name[1] <= '9' {
		return "KEY_" + name[1:]
	}
	return "KEY_" + toUpperASCII(name)
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// EvdevCode returns the evdev EV_KEY code for in.
func EvdevCode(in LogicalInput) (evdev.EvCode, bool) {
	code, ok := codeByInput[in]
	return code, ok
}

// FromEvdevCode maps an EV_KEY code back to a logical input.
func FromEvdevCode(code evdev.EvCode) (LogicalInput, bool) {
	in, ok := inputByCode[code]
	return in, ok
}
