package symtab

import (
	"machlink/internal/files"
	"machlink/internal/sections"
	"machlink/internal/trace"
)

// DefinedOpts mirrors the nlist attribute bits of an incoming definition.
type DefinedOpts struct {
	WeakDef               bool
	PrivateExtern         bool
	Thumb                 bool
	ReferencedDynamically bool
	NoDeadStrip           bool
	WeakDefCanBeHidden    bool
}

// AddDefined resolves a concrete definition against the slot for name.
//
// The result is nil only in the archive corner where the slot holds a
// common from a lazy member and this definition comes from an earlier lazy
// member; the common keeps the slot. Every other path returns the slot.
func (t *Table) AddDefined(name string, file files.ID, isec *sections.InputSection, value, size uint64, o DefinedOpts) *Symbol {
	overridesWeakDef := false
	s, wasInserted := t.insert(name, file)
	defer s.mu.Unlock()

	if !wasInserted {
		switch s.body.kind {
		case KindDefined:
			existingWeak := s.body.flags&FlagWeakDef != 0
			if o.WeakDef {
				if t.rank(file, false, true) < t.rank(s.body.file, false, existingWeak) {
					// A lazy-member or dylib-ranked holder loses to this weak def.
					t.installDefined(s, file, isec, value, size, o, false)
					return s
				}
				if existingWeak {
					// Two weak defs merge their attributes onto the survivor.
					if !o.PrivateExtern {
						s.body.flags &^= FlagPrivateExtern
					}
					if !o.WeakDefCanBeHidden {
						s.body.flags &^= FlagWeakDefCanBeHidden
					}
					if o.ReferencedDynamically {
						s.body.flags |= FlagReferencedDynamically
					}
					if o.NoDeadStrip {
						s.body.flags |= FlagNoDeadStrip
					}
				}
				return s
			}
			if existingWeak {
				// Strong incoming preempts the weak holder; replace below.
				break
			}
			if t.lazyMember(file) {
				ex := t.files.Get(s.body.file)
				if ex != nil && ex.Kind == files.KindBitcode {
					// A bitcode definition never loses to an archive member.
					return s
				}
				if ex != nil && ex.LazyArchiveMember() {
					in := t.files.Get(file)
					if in != nil && in.Priority < ex.Priority {
						// Both lazy: the earlier member wins the slot.
						break
					}
				}
				return s
			}
			// Strong vs strong: defer a duplicate diagnostic. The lower
			// ranked candidate keeps the slot, so the winner does not
			// depend on which ingestion worker got here first.
			t.recordDuplicate(s, file, isec, value)
			if t.rank(file, false, false) < t.rank(s.body.file, false, false) {
				break
			}
			return s
		case KindDylib:
			if t.lazyMember(file) {
				// Dylib symbols take priority over lazy archive members.
				return s
			}
			overridesWeakDef = !o.WeakDef && s.body.flags&FlagWeakDef != 0
			t.unreferenceDylib(s)
		case KindUndefined:
			// Keep the original bitcode file handle so diagnostics name the
			// bitcode source rather than the compiled object.
			if s.body.wasBitcode {
				file = s.body.file
			}
		case KindCommon:
			in, ex := t.files.Get(file), t.files.Get(s.body.file)
			if in != nil && ex != nil && in.LazyArchiveMember() && ex.LazyArchiveMember() &&
				in.Priority < ex.Priority {
				return nil
			}
		}
	}

	t.installDefined(s, file, isec, value, size, o, overridesWeakDef)
	trace.Point(t.tracer, trace.ScopeSymbol, "define:"+name, t.fileName(file))
	return s
}

// AddDefinedEager installs a definition without consulting the merge
// rules. Used by producers that already proved the name cannot collide
// (one symbol per bitcode definition).
func (t *Table) AddDefinedEager(name string, file files.ID, isec *sections.InputSection, value, size uint64, o DefinedOpts) *Symbol {
	s, _ := t.insert(name, file)
	t.installDefined(s, file, isec, value, size, o, false)
	s.mu.Unlock()
	return s
}

// AliasDefined creates a definition under target that shares src's
// section, value, size and attributes.
func (t *Table) AliasDefined(src *Symbol, target string, newFile files.ID, makePrivateExtern bool) *Symbol {
	src.mu.Lock()
	o := DefinedOpts{
		WeakDef:               src.body.flags&FlagWeakDef != 0,
		PrivateExtern:         makePrivateExtern || src.body.flags&FlagPrivateExtern != 0,
		Thumb:                 src.body.flags&FlagThumb != 0,
		ReferencedDynamically: src.body.flags&FlagReferencedDynamically != 0,
		NoDeadStrip:           src.body.flags&FlagNoDeadStrip != 0,
		WeakDefCanBeHidden:    src.body.flags&FlagWeakDefCanBeHidden != 0,
	}
	isec, value, size := src.body.isec, src.body.value, src.body.size
	src.mu.Unlock()
	return t.AddDefined(target, newFile, isec, value, size, o)
}

// AddSynthetic installs a linker-generated definition with no owning
// file. Whether it lands in the output symtab is the caller's choice.
func (t *Table) AddSynthetic(name string, isec *sections.InputSection, value uint64, isPrivateExtern, includeInSymtab, referencedDynamically bool) *Symbol {
	s := t.AddDefined(name, files.None, isec, value, 0, DefinedOpts{
		PrivateExtern:         isPrivateExtern,
		ReferencedDynamically: referencedDynamically,
	})
	s.mu.Lock()
	s.body.includeInSymtab = includeInSymtab
	s.mu.Unlock()
	return s
}
