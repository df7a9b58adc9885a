// Package selection tracks which source the remote peer currently wants.
//
// There is one writer (the control path) and any number of readers (the push
// path). The selection is published through an atomic pointer, so readers
// always see either the old or the new value and never block the writer.
package selection

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/breeze-rmm/audlink/internal/audio"
)

var (
	ErrUnknownSource   = errors.New("selection: unknown source")
	ErrInvalidChannels = errors.New("selection: channel subset out of range")
)

// Selection is an immutable record of the remote's choice.
type Selection struct {
	Source string
	// Channels is how many leading channels to forward. Zero means all
	// registered channels of the source.
	Channels int
}

// Wanted resolves the channel subset against the registered source.
func (s *Selection) Wanted(src audio.Source) int {
	if s.Channels == 0 || s.Channels > src.Channels {
		return src.Channels
	}
	return s.Channels
}

// State is the single-slot selection record.
type State struct {
	current atomic.Pointer[Selection]
}

// Current returns the active selection, or nil when nothing is selected.
// It never allocates.
func (st *State) Current() *Selection {
	return st.current.Load()
}

// Select validates sel against the given registry snapshot and publishes it.
// An unknown source or out-of-range channel subset is rejected and the
// previous selection is left untouched.
func (st *State) Select(sel Selection, snap *audio.Snapshot) error {
	src, ok := snap.Lookup(sel.Source)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, sel.Source)
	}
	if sel.Channels < 0 || sel.Channels > src.Channels {
		return fmt.Errorf("%w: %d of %d on %q", ErrInvalidChannels, sel.Channels, src.Channels, sel.Source)
	}

	st.current.Store(&sel)
	return nil
}

// Clear removes the selection. Returns the selection that was active.
func (st *State) Clear() *Selection {
	return st.current.Swap(nil)
}
