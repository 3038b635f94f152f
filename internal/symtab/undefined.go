package symtab

import (
	"machlink/internal/files"
)

// AddUndefined records a reference to name. A weak reference tolerates the
// name staying unresolved; a strong one demands a definition. Hitting a
// lazy slot converts the demand into a member fetch.
func (t *Table) AddUndefined(name string, file files.ID, isWeakRef bool) *Symbol {
	refState := RefStrong
	if isWeakRef {
		refState = RefWeak
	}

	s, wasInserted := t.insert(name, file)
	if wasInserted {
		t.installUndefined(s, file, refState, false)
		s.mu.Unlock()
		return s
	}

	switch s.body.kind {
	case KindLazyArchive:
		// The demand consumes the lazy slot before the fetch hook runs, so
		// racing references see a plain Undefined and exactly one fetch is
		// issued for the member.
		archive, cookie := s.body.file, s.body.cookie
		t.installUndefined(s, file, refState, false)
		s.mu.Unlock()
		t.fetchArchive(archive, cookie)
		return s
	case KindLazyObject:
		lazyFile := s.body.file
		t.installUndefined(s, file, refState, false)
		s.mu.Unlock()
		t.extractLazy(lazyFile, name)
		return s
	case KindDylib:
		t.referenceDylib(s, refState)
	case KindUndefined:
		if refState > s.body.refState {
			s.body.refState = refState
		}
	}
	s.mu.Unlock()
	return s
}

// AddUndefinedEager installs an Undefined without consulting the merge
// rules.
func (t *Table) AddUndefinedEager(name string, file files.ID, isWeakRef bool) *Symbol {
	refState := RefStrong
	if isWeakRef {
		refState = RefWeak
	}
	s, _ := t.insert(name, file)
	t.installUndefined(s, file, refState, false)
	s.mu.Unlock()
	return s
}

// AddBitcodeUndefined is AddUndefined for references originating in
// bitcode; the flag makes later diagnostics name the bitcode source.
func (t *Table) AddBitcodeUndefined(name string, file files.ID, isWeakRef bool) *Symbol {
	s := t.AddUndefined(name, file, isWeakRef)
	s.mu.Lock()
	if s.body.kind == KindUndefined {
		s.body.wasBitcode = true
	}
	s.mu.Unlock()
	return s
}
