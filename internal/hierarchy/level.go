// Package hierarchy models the company → department → employee tree that
// partitions the corpus: levels, scopes, chunk metadata, the path classifier
// and the query level plan.
package hierarchy

import (
	"errors"
	"fmt"
)

// Sentinel errors for hierarchy handling.
var (
	// ErrInvalidScope indicates a query scope that cannot be planned.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrMalformedPath indicates a corpus path that cannot be interpreted
	// relative to the corpus root.
	ErrMalformedPath = errors.New("malformed path")

	// ErrInvalidMetadata indicates chunk metadata that breaks level consistency.
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// Level is the granularity of a stored chunk or a search.
type Level uint8

// Levels from most general to most specific. The zero value is not a level.
const (
	LevelGeneral Level = iota + 1
	LevelCompany
	LevelDepartment
	LevelEmployee
)

var levelNames = map[Level]string{
	LevelGeneral:    "general",
	LevelCompany:    "company",
	LevelDepartment: "department",
	LevelEmployee:   "employee",
}

// String returns the level name used in stored metadata.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// ParseLevel converts a stored level name back into a Level.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// MarshalText implements encoding.TextMarshaler. The zero Level encodes
// as an empty string.
func (l Level) MarshalText() ([]byte, error) {
	if l == 0 {
		return []byte{}, nil
	}
	if !l.Valid() {
		return nil, fmt.Errorf("unknown level %d", uint8(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = 0
		return nil
	}
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
