package audio

import (
	"fmt"
	"sync/atomic"
)

// Snapshot is an immutable view of the configured sources. Pushes hold on to
// a snapshot for the duration of one call, so a concurrent reconfiguration
// can never be observed half-applied.
type Snapshot struct {
	sources     []Source
	maxChannels int
}

// Lookup finds a source by exact name. Source counts are small, a linear scan
// beats hashing here.
func (s *Snapshot) Lookup(name string) (Source, bool) {
	if s == nil {
		return Source{}, false
	}
	for _, src := range s.sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

// Sources returns a copy of the configured sources in configuration order.
func (s *Snapshot) Sources() []Source {
	if s == nil {
		return nil
	}
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Len returns the number of configured sources.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sources)
}

// MaxChannels returns the largest channel count in the snapshot.
func (s *Snapshot) MaxChannels() int {
	if s == nil {
		return 0
	}
	return s.maxChannels
}

// NewSnapshot validates sources and builds an immutable snapshot.
func NewSnapshot(sources []Source) (*Snapshot, error) {
	snap := &Snapshot{sources: make([]Source, 0, len(sources))}
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if _, dup := snap.Lookup(src.Name); dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, src.Name)
		}
		snap.sources = append(snap.sources, src)
		if src.Channels > snap.maxChannels {
			snap.maxChannels = src.Channels
		}
	}
	return snap, nil
}

// Registry publishes source snapshots. Configure is a single-writer
// operation: callers must finish configuration before pushes start (or
// otherwise serialize it against them). Reads are lock-free.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns a registry holding an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&Snapshot{})
	return r
}

// Configure replaces the entire source set. On error the previous snapshot
// stays in place.
func (r *Registry) Configure(sources []Source) error {
	snap, err := NewSnapshot(sources)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}

// Snapshot returns the currently published snapshot. Never nil.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Lookup is shorthand for Snapshot().Lookup(name).
func (r *Registry) Lookup(name string) (Source, bool) {
	return r.current.Load().Lookup(name)
}
