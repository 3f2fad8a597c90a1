// Package uid parses and normalizes composite node identifiers.
//
// A uid names a node across three scopes: the configuration (tenant),
// the class, and the internal storage id. The canonical string encoding
// is "config$Class$id". Two shorter legacy encodings are accepted on
// read: "Class$id" and a bare "id". Map-shaped identifiers (as found in
// node payloads) are read through their "_id"/"_class" keys.
package uid

import (
	"fmt"
	"regexp"
	"strings"
)

// Separator joins the uid segments in the string encoding.
const Separator = "$"

// Singleton is the internal id used by the "config$Class" shorthand,
// which addresses the single well-known instance of a class.
const Singleton = "singleton"

// uuidPattern matches a hyphenated RFC 4122 UUID. Used by the two-part
// heuristic to tell a config uid from a class name.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// UID is a parsed composite identifier. Any segment may be empty when
// the source encoding did not carry it.
type UID struct {
	Config string
	Class  string
	ID     string
}

// InvalidError reports a malformed or empty identifier.
type InvalidError struct {
	Value any
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid uid: %v", e.Value)
}

// String renders the canonical three-part encoding. Segments that are
// empty are rendered as empty strings, so only fully-qualified UIDs
// should be persisted.
func (u UID) String() string {
	return u.Config + Separator + u.Class + Separator + u.ID
}

// IsZero reports whether no segment is set.
func (u UID) IsZero() bool {
	return u.Config == "" && u.Class == "" && u.ID == ""
}

// Parse resolves a uid from its string or map encoding.
//
// String forms:
//   - "cfg$Class$id" (extra segments collapse: first is config, the
//     last two are class and id)
//   - "Class$id", unless the first segment is UUID-shaped, in which
//     case it is read as the "cfg$Class" singleton shorthand
//   - "id"
//
// Map forms read "_id"/"_class" (or "id"/"class"); a composite "_id"
// value is parsed recursively, with the map's class winning.
//
// The two-part heuristic cannot distinguish "Class$Id" from the
// "cfgUUID$Class" shorthand when Id itself is UUID-shaped. New writes
// always emit the three-part form, so the heuristic only ever decides
// legacy data.
func Parse(v any) (UID, error) {
	switch val := v.(type) {
	case nil:
		return UID{}, &InvalidError{Value: v}
	case UID:
		return val, nil
	case string:
		return parseString(val)
	case map[string]any:
		return parseMap(val)
	default:
		return parseString(fmt.Sprintf("%v", val))
	}
}

func parseString(s string) (UID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return UID{}, &InvalidError{Value: s}
	}

	parts := strings.Split(s, Separator)
	switch {
	case len(parts) >= 3:
		return UID{Config: parts[0], Class: parts[len(parts)-2], ID: parts[len(parts)-1]}, nil
	case len(parts) == 2:
		if uuidPattern.MatchString(parts[0]) {
			// "cfgUUID$Class" singleton shorthand.
			return UID{Config: parts[0], Class: parts[1], ID: Singleton}, nil
		}
		return UID{Class: parts[0], ID: parts[1]}, nil
	default:
		return UID{ID: parts[0]}, nil
	}
}

func parseMap(m map[string]any) (UID, error) {
	rawID, ok := m["_id"]
	if !ok {
		rawID = m["id"]
	}
	rawClass, ok := m["_class"]
	if !ok {
		rawClass = m["class"]
	}

	parsed, err := Parse(rawID)
	if err != nil {
		return UID{}, &InvalidError{Value: m}
	}
	if cls, ok := rawClass.(string); ok && cls != "" {
		parsed.Class = cls
	}
	return parsed, nil
}

// ExtractInternalID reduces any accepted uid encoding to the bare
// internal storage id. Returns "" for unparseable input.
func ExtractInternalID(v any) string {
	parsed, err := Parse(v)
	if err != nil {
		return ""
	}
	return parsed.ID
}

// Normalize builds the canonical "config$Class$id" encoding. The raw id
// may itself be composite; its internal id is re-extracted first so a
// uid is never double-prefixed.
func Normalize(config, class string, rawID any) string {
	internal := ExtractInternalID(rawID)
	if internal == "" {
		return ""
	}
	return config + Separator + class + Separator + internal
}
