// Package validate sanitizes client-supplied input. Validators never fail
// hard; they return a cleaned value or an ok flag and leave the decision to
// reject or substitute to the caller.
package validate

import (
	"regexp"
	"strings"
)

const (
	MaxNameLen       = 20
	MaxCursorOffset  = 100000
	MaxEditorTextLen = 10000
)

var (
	internalRoomID = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	fabricRoomID   = regexp.MustCompile(`^[a-z0-9]{10,20}$`)
)

// PlayerName trims, clips to 20 characters and strips angle brackets, quotes,
// ampersands, backslashes and control bytes. An empty result becomes "Player".
func PlayerName(raw string) string {
	name := strings.TrimSpace(raw)

	runes := []rune(name)
	if len(runes) > MaxNameLen {
		runes = runes[:MaxNameLen]
	}

	var b strings.Builder
	for _, r := range runes {
		if r <= 0x1F || r == 0x7F {
			continue
		}
		switch r {
		case '<', '>', '\'', '"', '&', '\\':
			continue
		}
		b.WriteRune(r)
	}

	if b.Len() == 0 {
		return "Player"
	}
	return b.String()
}

// RoomID accepts either a six character internal code (upper-cased) or a
// host-fabric room id.
func RoomID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if fabricRoomID.MatchString(id) {
		return id, true
	}
	upper := strings.ToUpper(id)
	if internalRoomID.MatchString(upper) {
		return upper, true
	}
	return "", false
}

// CursorOffset bounds a cursor offset to [0, MaxCursorOffset].
func CursorOffset(n int) bool {
	return n >= 0 && n <= MaxCursorOffset
}

// EditorText bounds editor text length.
func EditorText(s string) bool {
	return len(s) <= MaxEditorTextLen
}

// BoolOr coerces an optional boolean, substituting def when absent.
func BoolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
