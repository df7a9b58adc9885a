// Package audio holds the source registry and the channel extractor used on
// the push path.
//
// Source names are case-sensitive and compared byte-for-byte everywhere:
// registry lookup, selection matching and push matching all use ==.
package audio

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest source name the wire format can carry.
const MaxNameLength = 255

// MaxChannels bounds the channel count of a single source.
const MaxChannels = 1024

// Source is a named local audio source. Identity is the name.
type Source struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Channels int    `json:"channels" yaml:"channels" mapstructure:"channels"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s(%dch)", s.Name, s.Channels)
}

// Validate checks the source on its own; uniqueness is checked by the registry.
func (s Source) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.Channels < 1 || s.Channels > MaxChannels {
		return fmt.Errorf("%w: %q has %d channels", ErrInvalidChannelCount, s.Name, s.Channels)
	}
	return nil
}

// ValidateName reports whether name can be used as a source identifier.
func ValidateName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	case !utf8.ValidString(name):
		return ErrMalformedName
	case strings.IndexByte(name, 0) >= 0:
		return ErrMalformedName
	}
	return nil
}
