package sink

import (
	"strings"

	"github.com/hilthontt/remotepad/internal/domain"
)

// Linux input event codes for the keys a phone keyboard can produce.
const (
	keyEsc        = 1
	keyMinus      = 12
	keyEqual      = 13
	keyBackspace  = 14
	keyTab        = 15
	keyLeftBrace  = 26
	keyRightBrace = 27
	keyEnter      = 28
	keyLeftCtrl   = 29
	keySemicolon  = 39
	keyApostrophe = 40
	keyGrave      = 41
	keyLeftShift  = 42
	keyBackslash  = 43
	keyComma      = 51
	keyDot        = 52
	keySlash      = 53
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyF1         = 59
	keyF11        = 87
	keyF12        = 88
	keyHome       = 102
	keyUp         = 103
	keyPageUp     = 104
	keyLeft       = 105
	keyRight      = 106
	keyEnd        = 107
	keyDown       = 108
	keyPageDown   = 109
	keyInsert     = 110
	keyDelete     = 111
	keyMute       = 113
	keyVolumeDown = 114
	keyVolumeUp   = 115
	keyLeftMeta   = 125
	keyNextSong   = 163
	keyPlayPause  = 164
	keyPrevSong   = 165

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
)

var letterRows = []struct {
	letters string
	first   uint16
}{
	{"qwertyuiop", 16},
	{"asdfghjkl", 30},
	{"zxcvbnm", 44},
}

// named keys use KeyboardEvent.key spellings
var namedKeys = map[string]uint16{
	"escape":     keyEsc,
	"backspace":  keyBackspace,
	"tab":        keyTab,
	"enter":      keyEnter,
	"control":    keyLeftCtrl,
	"shift":      keyLeftShift,
	"alt":        keyLeftAlt,
	"meta":       keyLeftMeta,
	"capslock":   keyCapsLock,
	"space":      keySpace,
	"home":       keyHome,
	"end":        keyEnd,
	"pageup":     keyPageUp,
	"pagedown":   keyPageDown,
	"insert":     keyInsert,
	"delete":     keyDelete,
	"arrowup":    keyUp,
	"arrowdown":  keyDown,
	"arrowleft":  keyLeft,
	"arrowright": keyRight,
	"f11":        keyF11,
	"f12":        keyF12,

	"audiovolumemute":    keyMute,
	"audiovolumedown":    keyVolumeDown,
	"audiovolumeup":      keyVolumeUp,
	"mediaplaypause":     keyPlayPause,
	"mediatracknext":     keyNextSong,
	"mediatrackprevious": keyPrevSong,
}

type keyStroke struct {
	code  uint16
	shift bool
}

var charKeys = buildCharKeys()

func buildCharKeys() map[rune]keyStroke {
	m := map[rune]keyStroke{
		' ':  {keySpace, false},
		'\n': {keyEnter, false},
		'\t': {keyTab, false},
	}

	for _, row := range letterRows {
		for i, r := range row.letters {
			code := row.first + uint16(i)
			m[r] = keyStroke{code, false}
			m[r-'a'+'A'] = keyStroke{code, true}
		}
	}

	// 1..9 then 0 share the top row, with their shifted symbols
	shifted := ")!@#$%^&*("
	for d := 0; d <= 9; d++ {
		code := uint16(11)
		if d > 0 {
			code = uint16(1 + d)
		}
		m[rune('0'+d)] = keyStroke{code, false}
		m[rune(shifted[d])] = keyStroke{code, true}
	}

	for _, p := range []struct {
		plain, shifted rune
		code           uint16
	}{
		{'-', '_', keyMinus},
		{'=', '+', keyEqual},
		{'[', '{', keyLeftBrace},
		{']', '}', keyRightBrace},
		{';', ':', keySemicolon},
		{'\'', '"', keyApostrophe},
		{'`', '~', keyGrave},
		{'\\', '|', keyBackslash},
		{',', '<', keyComma},
		{'.', '>', keyDot},
		{'/', '?', keySlash},
	} {
		m[p.plain] = keyStroke{p.code, false}
		m[p.shifted] = keyStroke{p.code, true}
	}
	return m
}

// lookupKey resolves a key name or single character.
func lookupKey(key string) (keyStroke, bool) {
	if code, ok := namedKeys[strings.ToLower(key)]; ok {
		return keyStroke{code: code}, true
	}
	if len(key) == 2 && (key[0] == 'f' || key[0] == 'F') && key[1] >= '1' && key[1] <= '9' {
		return keyStroke{code: keyF1 + uint16(key[1]-'1')}, true
	}
	if key == "F10" || key == "f10" {
		return keyStroke{code: keyF1 + 9}, true
	}

	runes := []rune(key)
	if len(runes) == 1 {
		ks, ok := charKeys[runes[0]]
		return ks, ok
	}
	return keyStroke{}, false
}

func buttonCode(b domain.Button) (uint16, bool) {
	switch b {
	case domain.ButtonLeft:
		return btnLeft, true
	case domain.ButtonRight:
		return btnRight, true
	case domain.ButtonMiddle:
		return btnMiddle, true
	}
	return 0, false
}
