package input

import (
	"fmt"
	"strings"
)

type keyDef struct {
	name string
	vk   uint16
}

// keyTable lists the supported keyboard keys in ascending Windows virtual-key
// order. Names follow the Windows Forms Keys enumeration. This order is the
// enumeration order used by StateSource.Pressed on every platform.
var keyTable = buildKeyTable()

var mouseTable = []keyDef{
	{LButton, 0x01},
	{RButton, 0x02},
	{MButton, 0x04},
}

var (
	keysByLower    map[string]string
	keysByVK       map[uint16]string
	vkByKey        map[string]uint16
	buttonsByLower map[string]string
)

// Common spellings that differ from the canonical key names.
var keyAliases = map[string]string{
	"backspace":  "Back",
	"enter":      "Return",
	"esc":        "Escape",
	"capslock":   "Capital",
	"pgup":       "PageUp",
	"pgdn":       "PageDown",
	"ins":        "Insert",
	"del":        "Delete",
	"scrolllock": "Scroll",
	"lshift":     "LShiftKey",
	"rshift":     "RShiftKey",
	"lctrl":      "LControlKey",
	"rctrl":      "RControlKey",
	"lalt":       "LMenu",
	"ralt":       "RMenu",
}

func init() {
	keysByLower = make(map[string]string, len(keyTable))
	keysByVK = make(map[uint16]string, len(keyTable))
	vkByKey = make(map[string]uint16, len(keyTable))
	for _, k := range keyTable {
		keysByLower[strings.ToLower(k.name)] = k.name
		keysByVK[k.vk] = k.name
		vkByKey[k.name] = k.vk
	}
	for i := 0; i <= 9; i++ {
		keysByLower[fmt.Sprint(i)] = fmt.Sprintf("D%d", i)
	}
	for alias, name := range keyAliases {
		keysByLower[alias] = name
	}

	buttonsByLower = make(map[string]string, len(mouseTable))
	for _, b := range mouseTable {
		buttonsByLower[strings.ToLower(b.name)] = b.name
	}
}

func buildKeyTable() []keyDef {
	keys := []keyDef{
		{"Back", 0x08},
		{"Tab", 0x09},
		{"Clear", 0x0C},
		{"Return", 0x0D},
		{"Pause", 0x13},
		{"Capital", 0x14},
		{"Escape", 0x1B},
		{"Space", 0x20},
		{"PageUp", 0x21},
		{"PageDown", 0x22},
		{"End", 0x23},
		{"Home", 0x24},
		{"Left", 0x25},
		{"Up", 0x26},
		{"Right", 0x27},
		{"Down", 0x28},
		{"PrintScreen", 0x2C},
		{"Insert", 0x2D},
		{"Delete", 0x2E},
	}
	for i := 0; i <= 9; i++ {
		keys = append(keys, keyDef{fmt.Sprintf("D%d", i), uint16(0x30 + i)})
	}
	for c := 'A'; c <= 'Z'; c++ {
		keys = append(keys, keyDef{string(c), uint16(c)})
	}
	keys = append(keys,
		keyDef{"LWin", 0x5B},
		keyDef{"RWin", 0x5C},
		keyDef{"Apps", 0x5D},
	)
	for i := 0; i <= 9; i++ {
		keys = append(keys, keyDef{fmt.Sprintf("NumPad%d", i), uint16(0x60 + i)})
	}
	keys = append(keys,
		keyDef{"Multiply", 0x6A},
		keyDef{"Add", 0x6B},
		keyDef{"Separator", 0x6C},
		keyDef{"Subtract", 0x6D},
		keyDef{"Decimal", 0x6E},
		keyDef{"Divide", 0x6F},
	)
	for i := 1; i <= 24; i++ {
		keys = append(keys, keyDef{fmt.Sprintf("F%d", i), uint16(0x6F + i)})
	}
	keys = append(keys,
		keyDef{"NumLock", 0x90},
		keyDef{"Scroll", 0x91},
		keyDef{"LShiftKey", 0xA0},
		keyDef{"RShiftKey", 0xA1},
		keyDef{"LControlKey", 0xA2},
		keyDef{"RControlKey", 0xA3},
		keyDef{"LMenu", 0xA4},
		keyDef{"RMenu", 0xA5},
		keyDef{"OemSemicolon", 0xBA},
		keyDef{"Oemplus", 0xBB},
		keyDef{"Oemcomma", 0xBC},
		keyDef{"OemMinus", 0xBD},
		keyDef{"OemPeriod", 0xBE},
		keyDef{"OemQuestion", 0xBF},
		keyDef{"Oemtilde", 0xC0},
		keyDef{"OemOpenBrackets", 0xDB},
		keyDef{"OemPipe", 0xDC},
		keyDef{"OemCloseBrackets", 0xDD},
		keyDef{"OemQuotes", 0xDE},
	)
	return keys
}

func canonicalKey(name string) (string, bool) {
	key, ok := keysByLower[strings.ToLower(strings.TrimSpace(name))]
	return key, ok
}

func canonicalButton(name string) (string, bool) {
	btn, ok := buttonsByLower[strings.ToLower(strings.TrimSpace(name))]
	return btn, ok
}

// KeyNames returns every supported key name in enumeration order.
func KeyNames() []string {
	names := make([]string, len(keyTable))
	for i, k := range keyTable {
		names[i] = k.name
	}
	return names
}

// ButtonNames returns the supported mouse buttons in enumeration order.
func ButtonNames() []string {
	names := make([]string, len(mouseTable))
	for i, b := range mouseTable {
		names[i] = b.name
	}
	return names
}

// VirtualKey returns the Windows virtual-key code for in.
func VirtualKey(in LogicalInput) (uint16, bool) {
	switch in.Kind {
	case Keyboard:
		vk, ok := vkByKey[in.Code]
		return vk, ok
	case Mouse:
		for _, b := range mouseTable {
			if b.name == in.Code {
				return b.vk, true
			}
		}
	}
	return 0, false
}

// FromVirtualKey maps a Windows virtual-key code back to a keyboard input.
func FromVirtualKey(vk uint16) (LogicalInput, bool) {
	name, ok := keysByVK[vk]
	if !ok {
		return LogicalInput{}, false
	}
	return Key(name), true
}

// All returns every known input in enumeration order.
func All() []LogicalInput {
	all := make([]LogicalInput, 0, len(keyTable)+len(mouseTable))
	for _, k := range keyTable {
		all = append(all, Key(k.name))
	}
	for _, b := range mouseTable {
		all = append(all, Button(b.name))
	}
	return all
}

// collectPressed walks All in order and keeps the inputs isDown reports as held.
func collectPressed(isDown func(LogicalInput) (bool, error)) ([]LogicalInput, error) {
	var pressed []LogicalInput
	for _, in := range All() {
		down, err := isDown(in)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", in, err)
		}
		if down {
			pressed = append(pressed, in)
		}
	}
	return pressed, nil
}
