package files

import (
	"fmt"
	"sync"
	"sync/atomic"

	"fortio.org/safecast"
)

// ID identifies an input file within a Set.
type ID uint32

const (
	// None marks the absence of an owning file (synthetic symbols).
	None ID = 0
)

// IsValid reports whether the ID refers to a registered file.
func (id ID) IsValid() bool { return id != None }

// Kind classifies an input producer.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindObj
	KindDylib
	KindArchive
	KindBitcode
	KindSynthetic
)

func (k Kind) String() string {
	switch k {
	case KindObj:
		return "object"
	case KindDylib:
		return "dylib"
	case KindArchive:
		return "archive"
	case KindBitcode:
		return "bitcode"
	case KindSynthetic:
		return "synthetic"
	default:
		return "invalid"
	}
}

// File is the opaque handle the resolution core sees for one pre-parsed
// input. Format decoding happens outside the core; by the time a File
// exists its symbols are ready to be fed through the resolver.
type File struct {
	ID       ID
	Name     string
	Kind     Kind
	Priority uint32

	// Locals lists non-external defined names of an object file. They never
	// enter the global table; the spell checker consults them when building
	// "did you mean" hints.
	Locals []string

	lazyMember atomic.Bool
	dylibRefs  atomic.Int32
}

// LazyArchiveMember reports whether this file was pulled out of a static
// archive on demand. Readable concurrently with resolution.
func (f *File) LazyArchiveMember() bool { return f.lazyMember.Load() }

// MarkLazyArchiveMember flags the file as an extracted archive member.
func (f *File) MarkLazyArchiveMember() { f.lazyMember.Store(true) }

// DylibRefs returns the number of symbols currently referencing this dylib.
func (f *File) DylibRefs() int32 { return f.dylibRefs.Load() }

// RefDylib counts one more referenced symbol against the dylib.
func (f *File) RefDylib() { f.dylibRefs.Add(1) }

// UnrefDylib drops one referenced symbol from the dylib.
func (f *File) UnrefDylib() { f.dylibRefs.Add(-1) }

// Set is the arena of input files. IDs are dense and start at 1; index 0 is
// reserved for None. Files registered during the parallel ingestion phase
// (archive members arrive from the fetch hook) make the arena goroutine-safe.
type Set struct {
	mu   sync.RWMutex
	data []*File
}

// NewSet creates an empty arena with the None slot reserved.
func NewSet() *Set {
	return &Set{data: []*File{nil}}
}

// New registers a file and returns its ID. Priority is the command-line
// rank supplied by the driver; lower binds earlier.
func (s *Set) New(name string, kind Kind, priority uint32) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := safecast.Conv[uint32](len(s.data))
	if err != nil {
		panic(fmt.Errorf("file arena overflow: %w", err))
	}
	f := &File{
		ID:       ID(idx),
		Name:     name,
		Kind:     kind,
		Priority: priority,
	}
	s.data = append(s.data, f)
	return f
}

// Get returns the file for id, or nil for None and out-of-range ids.
func (s *Set) Get(id ID) *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !id.IsValid() || int(id) >= len(s.data) {
		return nil
	}
	return s.data[id]
}

// Name returns a printable name for id; synthetic inputs print as "<internal>".
func (s *Set) Name(id ID) string {
	if f := s.Get(id); f != nil {
		return f.Name
	}
	return "<internal>"
}

// Len reports the number of registered files excluding the sentinel.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data) - 1
}

// All returns the registered files in registration order.
func (s *Set) All() []*File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*File, len(s.data)-1)
	copy(out, s.data[1:])
	return out
}
