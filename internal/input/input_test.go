package input

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestParseQualified tests the keyboard_/mouse_ id forms
func TestParseQualified(t *testing.T) {
	cases := map[string]LogicalInput{
		"keyboard_A":       Key("A"),
		"KEYBOARD_a":       Key("A"),
		"mouse_LButton":    Button(LButton),
		"mouse_rbutton":    Button(RButton),
		"keyboard_F12":     Key("F12"),
		"keyboard_Return":  Key("Return"),
		"keyboard_numpad5": Key("NumPad5"),
	}

	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %v, want %v", raw, got, want)
		}
	}
}

// TestParseClassifiesOnlyExactMouseNames tests that letter prefixes do not make a key a mouse button
func TestParseClassifiesOnlyExactMouseNames(t *testing.T) {
	for _, name := range []string{"R", "M", "L", "Left", "Return", "LShiftKey", "RMenu"} {
		got, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", name, err)
		}
		if got.Kind != Keyboard {
			t.Errorf("Parse(%q) kind = %s, want keyboard", name, got.Kind)
		}
	}

	for _, name := range []string{"LButton", "rbutton", "MBUTTON"} {
		got, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", name, err)
		}
		if got.Kind != Mouse {
			t.Errorf("Parse(%q) kind = %s, want mouse", name, got.Kind)
		}
	}
}

// TestParseAliases tests common spellings
func TestParseAliases(t *testing.T) {
	cases := map[string]string{
		"enter": "Return",
		"Esc":   "Escape",
		"1":     "D1",
		"lctrl": "LControlKey",
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", raw, err)
		}
		if got != Key(want) {
			t.Errorf("Parse(%q) = %v, want %v", raw, got, Key(want))
		}
	}
}

// TestParseUnknown tests error reporting for unresolvable names
func TestParseUnknown(t *testing.T) {
	for _, raw := range []string{"", "   ", "NoSuchKey", "mouse_XButton1", "keyboard_"} {
		if _, err := Parse(raw); !errors.Is(err, ErrUnknownInput) {
			t.Errorf("Parse(%q) error = %v, want ErrUnknownInput", raw, err)
		}
	}
}

// TestLogicalInputString tests the qualified string form
func TestLogicalInputString(t *testing.T) {
	if got := Key("A").String(); got != "keyboard_A" {
		t.Errorf("Expected 'keyboard_A', got '%s'", got)
	}
	if got := Button(LButton).String(); got != "mouse_LButton" {
		t.Errorf("Expected 'mouse_LButton', got '%s'", got)
	}
	if got := (LogicalInput{}).String(); got != "" {
		t.Errorf("Expected empty string for zero input, got '%s'", got)
	}
}

// TestLogicalInputJSON tests text marshalling as map keys and values
func TestLogicalInputJSON(t *testing.T) {
	in := map[LogicalInput]int{Key("F"): 10}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"keyboard_F":10}` {
		t.Errorf("unexpected JSON %s", data)
	}

	var out map[LogicalInput]int
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if out[Key("F")] != 10 {
		t.Errorf("round trip lost value: %v", out)
	}
}

// TestKeyTableOrder tests that the enumeration is in ascending virtual-key order without duplicates
func TestKeyTableOrder(t *testing.T) {
	seen := make(map[string]bool)
	var last uint16
	for i, k := range keyTable {
		if i > 0 && k.vk <= last {
			t.Errorf("key %s (0x%X) out of order after 0x%X", k.name, k.vk, last)
		}
		if seen[k.name] {
			t.Errorf("duplicate key name %s", k.name)
		}
		seen[k.name] = true
		last = k.vk
	}
}

// TestVirtualKeyRoundTrip tests mapping between names and virtual-key codes
func TestVirtualKeyRoundTrip(t *testing.T) {
	vk, ok := VirtualKey(Key("A"))
	if !ok || vk != 0x41 {
		t.Fatalf("VirtualKey(A) = 0x%X, %v", vk, ok)
	}
	back, ok := FromVirtualKey(vk)
	if !ok || back != Key("A") {
		t.Errorf("FromVirtualKey(0x41) = %v, %v", back, ok)
	}

	if vk, ok := VirtualKey(Button(MButton)); !ok || vk != 0x04 {
		t.Errorf("VirtualKey(MButton) = 0x%X, %v", vk, ok)
	}
	if _, ok := VirtualKey(Key("Bogus")); ok {
		t.Error("Expected unknown key to have no virtual-key code")
	}
}

// TestCollectPressedOrder tests that keyboard keys come before mouse buttons in table order
func TestCollectPressedOrder(t *testing.T) {
	held := map[LogicalInput]bool{
		Button(LButton): true,
		Key("Z"):        true,
		Key("A"):        true,
		Button(RButton): true,
		Key("F1"):       true,
	}
	got, err := collectPressed(func(in LogicalInput) (bool, error) {
		return held[in], nil
	})
	if err != nil {
		t.Fatalf("collectPressed error = %v", err)
	}

	want := []LogicalInput{Key("A"), Key("Z"), Key("F1"), Button(LButton), Button(RButton)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// TestCollectPressedPropagatesErrors tests that a failing query aborts the walk
func TestCollectPressedPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := collectPressed(func(in LogicalInput) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped error, got %v", err)
	}
}
