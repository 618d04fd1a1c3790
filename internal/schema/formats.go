// Package schema provides JSON Schema validation with custom formats.
package schema

import (
	"regexp"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var roomIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// roomIDFormatChecker implements gojsonschema.FormatChecker for room_id.
type roomIDFormatChecker struct{}

// IsFormat accepts letters, digits, hyphens, underscores and dots.
func (c roomIDFormatChecker) IsFormat(input interface{}) bool {
	s, ok := input.(string)
	return ok && roomIDPattern.MatchString(s)
}

// ValidRoomID reports whether id is an acceptable room identifier.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

var registerOnce sync.Once

// RegisterCustomFormats registers the room_id format. Safe to call repeatedly.
func RegisterCustomFormats() {
	registerOnce.Do(func() {
		gojsonschema.FormatCheckers.Add("room_id", roomIDFormatChecker{})
	})
}
