package symtab

import (
	"machlink/internal/files"
)

// AddCommon resolves a tentative definition. Among commons the largest
// size wins; equal-size contests between two lazy archive members go to
// the earlier member. A Defined beats a common except in the archive
// tie-break preserved from the captured behavior: when both origin files
// are lazy members and the common arrives with lower priority, the common
// replaces the Defined.
func (t *Table) AddCommon(name string, file files.ID, size uint64, align uint32, isPrivateExtern bool) *Symbol {
	s, wasInserted := t.insert(name, file)
	defer s.mu.Unlock()

	if !wasInserted {
		switch s.body.kind {
		case KindCommon:
			if size < s.body.size {
				return s
			}
			if size == s.body.size {
				in, ex := t.files.Get(file), t.files.Get(s.body.file)
				bothLazy := in != nil && ex != nil && in.LazyArchiveMember() && ex.LazyArchiveMember()
				if !bothLazy || in.Priority >= ex.Priority {
					return s
				}
			}
		case KindDefined:
			in, ex := t.files.Get(file), t.files.Get(s.body.file)
			if in != nil && ex != nil && in.LazyArchiveMember() && ex.LazyArchiveMember() &&
				in.Priority < ex.Priority {
				break
			}
			return s
		}
		// Commons overwrite every other non-Defined variant.
	}

	t.installCommon(s, file, size, align, isPrivateExtern)
	return s
}

// AddCommonEager installs a CommonSymbol without consulting the merge
// rules.
func (t *Table) AddCommonEager(name string, file files.ID, size uint64, align uint32, isPrivateExtern bool) *Symbol {
	s, _ := t.insert(name, file)
	t.installCommon(s, file, size, align, isPrivateExtern)
	s.mu.Unlock()
	return s
}
