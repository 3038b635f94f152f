package symtab

import (
	"sync"

	"github.com/blacktop/go-macho/types"

	"machlink/internal/config"
	"machlink/internal/files"
	"machlink/internal/sections"
	"machlink/internal/trace"
)

// Externals is the set of callbacks the resolution core needs from the
// surrounding linker. Hooks are invoked with no slot lock held; fetch and
// extract may re-enter the Add* family on the same table.
type Externals struct {
	// FetchArchiveMember extracts a lazy archive member and re-feeds its
	// symbols through the table. The cookie is the one registered by
	// AddLazyArchive.
	FetchArchiveMember func(archive *files.File, cookie uint64)

	// ExtractLazyObject does the same for a lazy object file.
	ExtractLazyObject func(file *files.File, name string)

	// MakeSyntheticSection fabricates an empty input section for a
	// (seg,sect) pair no real input provided.
	MakeSyntheticSection func(seg, sect string) *sections.InputSection

	// FindOutputSection returns the existing output section or nil.
	FindOutputSection func(seg, sect string) *sections.OutputSection

	// OutputSectionFor attaches an input section to its output section,
	// creating the container on demand.
	OutputSectionFor func(isec *sections.InputSection) *sections.OutputSection

	// OutputSegment returns the named output segment, created on demand.
	OutputSegment func(name string) *sections.OutputSegment

	// SourceLocation renders debug-info-quality location for a reference
	// site; may return "".
	SourceLocation func(isec *sections.InputSection, off uint64) string

	// IsLive answers the dead-strip liveness query. Nil means everything
	// is considered live.
	IsLive func(*Symbol) bool
}

// Hints provide optional capacity suggestions for the table.
type Hints struct{ Symbols uint }

// Table is the globally resolved symbol table: storage, index, resolver
// state and the deferred diagnostic pools of one link invocation. All
// former process singletons of the captured design live here; build one
// per link and let it die with the invocation.
//
// The Add* entry points are safe for concurrent use during ingestion. The
// Treat*/Report* entry points run single-threaded after ingestion joins.
type Table struct {
	cfg    *config.Config
	files  *files.Set
	ext    Externals
	tracer trace.Tracer

	pool  pool
	index *nameIndex

	dupMu sync.Mutex
	dups  []duplicateDiag

	undefs undefMap
}

// New builds a table for one link invocation.
func New(cfg *config.Config, fs *files.Set, ext Externals, tracer trace.Tracer, _ Hints) *Table {
	if tracer == nil {
		tracer = trace.Nop
	}
	t := &Table{
		cfg:    cfg,
		files:  fs,
		ext:    ext,
		tracer: tracer,
	}
	t.index = newNameIndex(&t.pool)
	t.undefs.refs = make(map[*Symbol]*undefRefs)
	return t
}

// Files exposes the input-file arena the table resolves against.
func (t *Table) Files() *files.Set { return t.files }

// Config exposes the frozen link configuration.
func (t *Table) Config() *config.Config { return t.cfg }

// Find is the read-only directory lookup; nil if the name was never
// mentioned.
func (t *Table) Find(name string) *Symbol {
	return t.index.find(MakeName(name))
}

// Symbols returns the slots in allocation order. Snapshot semantics;
// intended for the single-threaded phases after ingestion.
func (t *Table) Symbols() []*Symbol {
	out := make([]*Symbol, 0, t.pool.len())
	t.pool.forEach(func(s *Symbol) bool {
		out = append(out, s)
		return true
	})
	return out
}

// insert obtains the slot for name, creating it on first mention, and
// applies the sticky regular-object bit. The slot lock is held on return.
func (t *Table) insert(name string, file files.ID) (*Symbol, bool) {
	s, wasInserted := t.index.insert(MakeName(name))
	if !file.IsValid() {
		s.usedInRegularObj = true
	} else if f := t.files.Get(file); f != nil && f.Kind == files.KindObj {
		s.usedInRegularObj = true
	}
	return s, wasInserted
}

// rank computes the layered precedence of a candidate definition. Lower
// wins; the low bits carry the file priority so one integer compare
// decides a contest.
func (t *Table) rank(file files.ID, isCommon, isWeak bool) uint64 {
	f := t.files.Get(file)
	if f == nil {
		return 7 << 24
	}
	prio := uint64(f.Priority)
	if isCommon {
		if f.LazyArchiveMember() {
			return 6<<24 + prio
		}
		return 5<<24 + prio
	}
	if f.Kind == files.KindDylib || f.LazyArchiveMember() {
		if isWeak {
			return 4<<24 + prio
		}
		return 3<<24 + prio
	}
	if isWeak {
		return 2<<24 + prio
	}
	return 1<<24 + prio
}

// lazyMember reports whether file is an extracted archive member.
func (t *Table) lazyMember(file files.ID) bool {
	f := t.files.Get(file)
	return f != nil && f.LazyArchiveMember()
}

// referenceDylib raises a dylib symbol's refState and maintains the
// owning dylib's referenced-symbol count. Caller holds the slot lock.
func (t *Table) referenceDylib(s *Symbol, refState RefState) {
	if refState == RefUnreferenced {
		return
	}
	if s.body.refState == RefUnreferenced {
		if f := t.files.Get(s.body.file); f != nil {
			f.RefDylib()
		}
	}
	if refState > s.body.refState {
		s.body.refState = refState
	}
}

// unreferenceDylib drops the dylib's referenced-symbol count when a
// referenced DylibSymbol is about to be replaced. Caller holds the slot
// lock.
func (t *Table) unreferenceDylib(s *Symbol) {
	if s.body.kind != KindDylib || s.body.refState == RefUnreferenced {
		return
	}
	if f := t.files.Get(s.body.file); f != nil {
		f.UnrefDylib()
	}
}

// fetchArchive invokes the archive fetch hook. Never called with a slot
// lock held: the hook re-enters the table while feeding member symbols.
func (t *Table) fetchArchive(archive files.ID, cookie uint64) {
	f := t.files.Get(archive)
	if f == nil || t.ext.FetchArchiveMember == nil {
		return
	}
	trace.Point(t.tracer, trace.ScopeInput, "fetch:"+f.Name, "")
	t.ext.FetchArchiveMember(f, cookie)
}

// extractLazy invokes the lazy-object extraction hook. Same re-entrancy
// contract as fetchArchive.
func (t *Table) extractLazy(file files.ID, name string) {
	f := t.files.Get(file)
	if f == nil || t.ext.ExtractLazyObject == nil {
		return
	}
	trace.Point(t.tracer, trace.ScopeInput, "extract:"+f.Name, name)
	t.ext.ExtractLazyObject(f, name)
}

// isLive consults the external liveness query; everything is live when
// the surrounding linker does not dead-strip.
func (t *Table) isLive(s *Symbol) bool {
	if t.ext.IsLive == nil {
		return true
	}
	return t.ext.IsLive(s)
}

// srcLoc renders a debug-info source location, or "".
func (t *Table) srcLoc(isec *sections.InputSection, off uint64) string {
	if isec == nil || t.ext.SourceLocation == nil {
		return ""
	}
	return t.ext.SourceLocation(isec, off)
}

// fileName names a file for diagnostics.
func (t *Table) fileName(id files.ID) string {
	return t.files.Name(id)
}

// installDefined overwrites the slot with a Defined variant. Caller holds
// the slot lock.
func (t *Table) installDefined(s *Symbol, file files.ID, isec *sections.InputSection, value, size uint64, o DefinedOpts, overridesWeakDef bool) {
	flags := Flags(0)
	if o.WeakDef {
		flags |= FlagWeakDef
	}
	if o.PrivateExtern {
		flags |= FlagPrivateExtern
	}
	if o.Thumb {
		flags |= FlagThumb
	}
	if o.ReferencedDynamically {
		flags |= FlagReferencedDynamically
	}
	if o.NoDeadStrip {
		flags |= FlagNoDeadStrip
	}
	if o.WeakDefCanBeHidden {
		flags |= FlagWeakDefCanBeHidden
	}
	if overridesWeakDef {
		flags |= FlagOverridesWeakDef
	}
	// With a flat namespace all externs of a non-executable output are
	// interposable at load time.
	if t.cfg.Namespace == config.NamespaceFlat && t.cfg.OutputType != types.MH_EXECUTE && !o.PrivateExtern {
		flags |= FlagInterposable
	}
	s.body = body{
		kind:            KindDefined,
		includeInSymtab: true,
		flags:           flags,
		file:            file,
		isec:            isec,
		value:           value,
		size:            size,
	}
}

// installUndefined overwrites the slot with an Undefined variant. Caller
// holds the slot lock.
func (t *Table) installUndefined(s *Symbol, file files.ID, refState RefState, wasBitcode bool) {
	s.body = body{
		kind:       KindUndefined,
		refState:   refState,
		wasBitcode: wasBitcode,
		file:       file,
	}
}

// installCommon overwrites the slot with a CommonSymbol variant. Caller
// holds the slot lock.
func (t *Table) installCommon(s *Symbol, file files.ID, size uint64, align uint32, isPrivateExtern bool) {
	flags := Flags(0)
	if isPrivateExtern {
		flags |= FlagPrivateExtern
	}
	s.body = body{
		kind:            KindCommon,
		includeInSymtab: true,
		flags:           flags,
		file:            file,
		size:            size,
		align:           align,
	}
}

// installDylib overwrites the slot with a DylibSymbol variant and settles
// the reference accounting. Caller holds the slot lock.
func (t *Table) installDylib(s *Symbol, file files.ID, isWeakDef bool, refState RefState, isTlv bool) {
	flags := Flags(0)
	if isWeakDef {
		flags |= FlagWeakDef
	}
	if isTlv {
		flags |= FlagTlv
	}
	s.body = body{
		kind:            KindDylib,
		includeInSymtab: true,
		flags:           flags,
		file:            file,
		refState:        refState,
	}
	if refState != RefUnreferenced {
		if f := t.files.Get(file); f != nil {
			f.RefDylib()
		}
	}
}

// installLazy overwrites the slot with a lazy variant. Caller holds the
// slot lock.
func (t *Table) installLazy(s *Symbol, kind Kind, file files.ID, cookie uint64) {
	s.body = body{
		kind:   kind,
		file:   file,
		cookie: cookie,
	}
}
