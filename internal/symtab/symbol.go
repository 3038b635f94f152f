package symtab

import (
	"sync"

	"machlink/internal/files"
	"machlink/internal/sections"
)

// Kind discriminates the variant currently stored in a symbol slot.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUndefined
	KindDefined
	KindCommon
	KindDylib
	KindLazyArchive
	KindLazyObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindDefined:
		return "defined"
	case KindCommon:
		return "common"
	case KindDylib:
		return "dylib"
	case KindLazyArchive:
		return "lazy-archive"
	case KindLazyObject:
		return "lazy-object"
	default:
		return "invalid"
	}
}

// RefState is the strongest reference observed for an Undefined or
// DylibSymbol. Monotone non-decreasing over Unreferenced < Weak < Strong.
type RefState uint8

const (
	RefUnreferenced RefState = iota
	RefWeak
	RefStrong
)

// Flags encode the attribute bits of a definition.
type Flags uint16

const (
	FlagWeakDef Flags = 1 << iota
	FlagPrivateExtern
	FlagThumb
	FlagReferencedDynamically
	FlagNoDeadStrip
	FlagWeakDefCanBeHidden
	FlagOverridesWeakDef
	FlagInterposable
	FlagTlv
)

// body is the variant cell of a slot: discriminant plus the payload union.
// Replacing a symbol overwrites the body in place, so every outstanding
// *Symbol transparently observes the new variant.
type body struct {
	kind            Kind
	includeInSymtab bool
	wasBitcode      bool
	refState        RefState
	flags           Flags
	file            files.ID
	isec            *sections.InputSection
	value           uint64
	size            uint64
	align           uint32
	cookie          uint64
}

// Symbol is one fixed-size slot of the table. Its address is stable for the
// entire link; relocations and boundary lists hold *Symbol and re-read the
// discriminant before each use. The name and the sticky header bits survive
// every variant replacement.
type Symbol struct {
	mu   sync.Mutex
	name string
	hash uint64

	usedInRegularObj bool

	body body
}

// Name returns the interned symbol name.
func (s *Symbol) Name() string { return s.name }

// SymbolName satisfies sections.Boundary.
func (s *Symbol) SymbolName() string { return s.name }

// Kind returns the current variant discriminant.
func (s *Symbol) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.kind
}

// File returns the owning input file; files.None for synthetic symbols and
// dynamic lookups.
func (s *Symbol) File() files.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.file
}

// UsedInRegularObj reports the sticky regular-object flag.
func (s *Symbol) UsedInRegularObj() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedInRegularObj
}

// IncludeInSymtab reports whether the symbol lands in the output symtab.
func (s *Symbol) IncludeInSymtab() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.includeInSymtab
}

// RefState returns the strongest observed reference.
func (s *Symbol) RefState() RefState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.refState
}

// WasBitcodeSymbol reports whether the Undefined originated in bitcode.
func (s *Symbol) WasBitcodeSymbol() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.wasBitcode
}

// InputSection returns the defining input section, if any.
func (s *Symbol) InputSection() *sections.InputSection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.isec
}

// Value returns the section offset of a Defined (layout address later).
func (s *Symbol) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.value
}

// Size returns the definition or common size.
func (s *Symbol) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.size
}

// Align returns a common symbol's alignment.
func (s *Symbol) Align() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.align
}

// ArchiveCookie returns the opaque archive-member cookie of a LazyArchive.
func (s *Symbol) ArchiveCookie() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.cookie
}

// Has reports whether the given flag bits are all set.
func (s *Symbol) Has(f Flags) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.flags&f == f
}

// IsWeakDef reports whether the current variant is a weak definition.
func (s *Symbol) IsWeakDef() bool { return s.Has(FlagWeakDef) }

// IsDynamicLookup reports whether the symbol binds by dynamic lookup:
// a DylibSymbol with no backing dylib.
func (s *Symbol) IsDynamicLookup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.kind == KindDylib && !s.body.file.IsValid()
}
