package driver

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"machlink/internal/config"
	"machlink/internal/diag"
	"machlink/internal/files"
	"machlink/internal/observ"
	"machlink/internal/sections"
	"machlink/internal/symtab"
	"machlink/internal/trace"
)

// prioStride spaces the priorities of command-line inputs so extracted
// archive members can slot between their archive and the next input while
// keeping the global order total.
const prioStride = 1 << 10

// Link owns the state of one invocation: the file arena, the output
// container registry, the symbol table and the collected diagnostics.
// Build it, call Run once, read Bag.
type Link struct {
	Manifest *Manifest
	Cfg      *config.Config
	Files    *files.Set
	Registry *sections.Registry
	Table    *symtab.Table
	Bag      *diag.Bag
	Timer    *observ.Timer

	tracer trace.Tracer
	jobs   int

	mu       sync.Mutex
	isecs    map[isecKey]*sections.InputSection
	srcLocs  map[*sections.InputSection]map[uint64]string
	fetched  map[fetchKey]bool
	archives []archiveState
	refs     []pendingRef
}

type isecKey struct {
	file      files.ID
	seg, sect string
}

type fetchKey struct {
	archive files.ID
	cookie  uint64
}

type archiveState struct {
	file  *files.File
	input *ArchiveInput
}

// pendingRef is a reference site waiting for the single-threaded scan.
type pendingRef struct {
	seq    int
	prio   uint32
	name   string
	isec   *sections.InputSection
	offset uint64
	source string
}

// Options tune a link run.
type Options struct {
	Jobs   int
	Tracer trace.Tracer
	// MaxDiagnostics bounds the bag; 0 picks a sane default.
	MaxDiagnostics int
}

// NewLink builds the per-invocation context around a manifest.
func NewLink(m *Manifest, opts Options) (*Link, error) {
	cfg, err := m.BuildConfig()
	if err != nil {
		return nil, err
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	maxDiags := opts.MaxDiagnostics
	if maxDiags <= 0 {
		maxDiags = 100
	}

	l := &Link{
		Manifest: m,
		Cfg:      cfg,
		Files:    files.NewSet(),
		Registry: sections.NewRegistry(),
		Bag:      diag.NewBag(maxDiags),
		Timer:    observ.NewTimer(),
		tracer:   tracer,
		jobs:     jobs,
		isecs:    make(map[isecKey]*sections.InputSection),
		srcLocs:  make(map[*sections.InputSection]map[uint64]string),
		fetched:  make(map[fetchKey]bool),
	}

	ext := symtab.Externals{
		FetchArchiveMember:   l.fetchArchiveMember,
		ExtractLazyObject:    l.extractLazyObject,
		MakeSyntheticSection: l.Registry.MakeSynthetic,
		FindOutputSection:    l.Registry.Find,
		OutputSectionFor:     l.Registry.SectionFor,
		OutputSegment:        l.Registry.Segment,
		SourceLocation:       l.sourceLocation,
	}
	l.Table = symtab.New(cfg, l.Files, ext, tracer, symtab.Hints{})
	return l, nil
}

// Run executes the three phases of the invocation: parallel ingestion,
// the single-threaded reference scan, and diagnostic reporting.
func (l *Link) Run(ctx context.Context) error {
	trace.Begin(l.tracer, trace.ScopePhase, "ingest")
	idx := l.Timer.Begin("ingest")
	if err := l.ingest(ctx); err != nil {
		return err
	}
	l.Timer.End(idx, fmt.Sprintf("%d inputs, %d symbols", l.Files.Len(), len(l.Table.Symbols())))
	trace.End(l.tracer, trace.ScopePhase, "ingest")

	trace.Begin(l.tracer, trace.ScopePhase, "scan")
	idx = l.Timer.Begin("scan")
	l.scanReferences()
	l.Timer.End(idx, fmt.Sprintf("%d reference sites", len(l.refs)))
	trace.End(l.tracer, trace.ScopePhase, "scan")

	trace.Begin(l.tracer, trace.ScopePhase, "report")
	idx = l.Timer.Begin("report")
	r := diag.BagReporter{Bag: l.Bag}
	l.Table.ReportPendingDuplicateSymbols(r)
	l.Table.ReportPendingUndefinedSymbols(r)
	l.Timer.End(idx, fmt.Sprintf("%d diagnostics", l.Bag.Len()))
	trace.End(l.tracer, trace.ScopePhase, "report")
	return nil
}

// ingest feeds every input through the resolver, objects and dylibs in
// parallel. Outcomes do not depend on worker interleaving: the precedence
// rank is total over file priorities and per-slot merges serialize.
func (l *Link) ingest(ctx context.Context) error {
	type job func() error
	var jobs []job

	prio := uint32(0)
	nextPrio := func() uint32 {
		p := prio
		prio += prioStride
		return p
	}

	for i := range l.Manifest.Objects {
		in := &l.Manifest.Objects[i]
		f := l.Files.New(in.Name, files.KindObj, nextPrio())
		f.Locals = append(f.Locals, in.Locals...)
		jobs = append(jobs, func() error { return l.feedObject(f, in) })
	}
	for i := range l.Manifest.Dylibs {
		in := &l.Manifest.Dylibs[i]
		f := l.Files.New(in.Name, files.KindDylib, nextPrio())
		jobs = append(jobs, func() error { return l.feedDylib(f, in) })
	}
	for i := range l.Manifest.Archives {
		in := &l.Manifest.Archives[i]
		f := l.Files.New(in.Name, files.KindArchive, nextPrio())
		l.mu.Lock()
		l.archives = append(l.archives, archiveState{file: f, input: in})
		l.mu.Unlock()
		jobs = append(jobs, func() error { return l.feedArchive(f, in) })
	}
	for i := range l.Manifest.Bitcode {
		in := &l.Manifest.Bitcode[i]
		f := l.Files.New(in.Name, files.KindBitcode, nextPrio())
		jobs = append(jobs, func() error { return l.feedBitcode(f, in) })
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(l.jobs)
	for _, j := range jobs {
		g.Go(j)
	}
	return g.Wait()
}

// inputSection returns the per-(file,seg,sect) input section, creating
// and registering it on first use.
func (l *Link) inputSection(file *files.File, seg, sect string) *sections.InputSection {
	l.mu.Lock()
	key := isecKey{file: file.ID, seg: seg, sect: sect}
	isec := l.isecs[key]
	if isec == nil {
		isec = &sections.InputSection{File: file.ID, Seg: seg, Sect: sect, Live: true}
		l.isecs[key] = isec
		l.mu.Unlock()
		l.Registry.SectionFor(isec)
		return isec
	}
	l.mu.Unlock()
	return isec
}

// rememberSourceLoc stashes a record's debug-info location for the
// SourceLocation contract.
func (l *Link) rememberSourceLoc(isec *sections.InputSection, off uint64, loc string) {
	if loc == "" || isec == nil {
		return
	}
	l.mu.Lock()
	m := l.srcLocs[isec]
	if m == nil {
		m = make(map[uint64]string)
		l.srcLocs[isec] = m
	}
	m[off] = loc
	l.mu.Unlock()
}

func (l *Link) sourceLocation(isec *sections.InputSection, off uint64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.srcLocs[isec][off]
}

// recordRef queues a reference site for the scan phase.
func (l *Link) recordRef(f *files.File, rec *SymbolRecord, isec *sections.InputSection) {
	ref := pendingRef{
		prio:   f.Priority,
		name:   rec.Name,
		isec:   isec,
		offset: rec.RefOffset,
		source: rec.RefSource,
	}
	if ref.isec == nil && ref.source == "" {
		ref.source = f.Name
	}
	l.mu.Lock()
	ref.seq = len(l.refs)
	l.refs = append(l.refs, ref)
	l.mu.Unlock()
}

// feedObject pushes one object's records through the resolver. Also runs
// re-entrantly for fetched archive members.
func (l *Link) feedObject(f *files.File, in *ObjectInput) error {
	if in.Lazy {
		for i := range in.Symbols {
			rec := &in.Symbols[i]
			if rec.Kind == "defined" || rec.Kind == "common" {
				l.Table.AddLazyObject(rec.Name, f.ID)
			}
		}
		return nil
	}
	trace.Point(l.tracer, trace.ScopeInput, "object:"+f.Name, "")
	for i := range in.Symbols {
		rec := &in.Symbols[i]
		switch rec.Kind {
		case "defined":
			var isec *sections.InputSection
			if rec.Section != "" {
				seg, sect, err := splitSection(rec.Section)
				if err != nil {
					return fmt.Errorf("%s: %s: %w", f.Name, rec.Name, err)
				}
				isec = l.inputSection(f, seg, sect)
			}
			l.Table.AddDefined(rec.Name, f.ID, isec, rec.Value, rec.Size, rec.definedOpts())
			l.rememberSourceLoc(isec, rec.Value, rec.SourceLoc)
		case "common":
			l.Table.AddCommon(rec.Name, f.ID, rec.Size, rec.Align, rec.privateExtern())
		case "undefined":
			l.Table.AddUndefined(rec.Name, f.ID, rec.weakRef())
			var isec *sections.InputSection
			if rec.RefSection != "" {
				seg, sect, err := splitSection(rec.RefSection)
				if err != nil {
					return fmt.Errorf("%s: %s: %w", f.Name, rec.Name, err)
				}
				isec = l.inputSection(f, seg, sect)
			}
			l.recordRef(f, rec, isec)
		default:
			return fmt.Errorf("%s: %s: unknown symbol kind %q", f.Name, rec.Name, rec.Kind)
		}
	}
	return nil
}

// feedDylib resolves a dynamic library's exports.
func (l *Link) feedDylib(f *files.File, in *DylibInput) error {
	trace.Point(l.tracer, trace.ScopeInput, "dylib:"+f.Name, "")
	for i := range in.Symbols {
		rec := &in.Symbols[i]
		l.Table.ResolveDylib(rec.Name, f.ID, rec.Weak, rec.Tlv)
	}
	return nil
}

// feedArchive registers every member's defined names as lazy candidates.
// The cookie packs (member, record) indexes; the fetch hook unpacks it.
func (l *Link) feedArchive(f *files.File, in *ArchiveInput) error {
	trace.Point(l.tracer, trace.ScopeInput, "archive:"+f.Name, "")
	for mi := range in.Members {
		member := &in.Members[mi]
		cookie, err := safecast.Conv[uint64](mi)
		if err != nil {
			return fmt.Errorf("%s: member index overflow: %w", f.Name, err)
		}
		for si := range member.Symbols {
			rec := &member.Symbols[si]
			if rec.Kind == "defined" || rec.Kind == "common" {
				l.Table.AddLazyArchive(rec.Name, f.ID, cookie)
			}
		}
	}
	return nil
}

// feedBitcode feeds a bitcode input through the checked entry points (a
// manifest cannot prove a bitcode name fresh); undefineds are flagged so
// diagnostics name the bitcode source.
func (l *Link) feedBitcode(f *files.File, in *ObjectInput) error {
	trace.Point(l.tracer, trace.ScopeInput, "bitcode:"+f.Name, "")
	for i := range in.Symbols {
		rec := &in.Symbols[i]
		switch rec.Kind {
		case "defined":
			l.Table.AddDefined(rec.Name, f.ID, nil, rec.Value, rec.Size, rec.definedOpts())
		case "common":
			l.Table.AddCommon(rec.Name, f.ID, rec.Size, rec.Align, rec.privateExtern())
		case "undefined":
			l.Table.AddBitcodeUndefined(rec.Name, f.ID, rec.weakRef())
			l.recordRef(f, rec, nil)
		default:
			return fmt.Errorf("%s: %s: unknown symbol kind %q", f.Name, rec.Name, rec.Kind)
		}
	}
	return nil
}

// fetchArchiveMember is the Externals hook: extract a member and re-feed
// its symbols through the table. Each (archive, member) extracts once no
// matter how many names demand it.
func (l *Link) fetchArchiveMember(archive *files.File, cookie uint64) {
	l.mu.Lock()
	key := fetchKey{archive: archive.ID, cookie: cookie}
	if l.fetched[key] {
		l.mu.Unlock()
		return
	}
	l.fetched[key] = true

	var member *ObjectInput
	for _, st := range l.archives {
		if st.file.ID == archive.ID {
			if int(cookie) < len(st.input.Members) {
				member = &st.input.Members[cookie]
			}
			break
		}
	}
	l.mu.Unlock()
	if member == nil {
		return
	}

	mPrio, err := safecast.Conv[uint32](uint64(archive.Priority) + cookie + 1)
	if err != nil {
		mPrio = archive.Priority
	}
	f := l.Files.New(archive.Name+"("+member.Name+")", files.KindObj, mPrio)
	f.MarkLazyArchiveMember()
	f.Locals = append(f.Locals, member.Locals...)
	_ = l.feedObject(f, member)
}

// extractLazyObject is the Externals hook for lazy object files: find the
// lazy input and feed it for real. Extraction is per-file; the demanded
// name only picked which lazy slot pulled the trigger.
func (l *Link) extractLazyObject(file *files.File, _ string) {
	l.mu.Lock()
	key := fetchKey{archive: file.ID, cookie: ^uint64(0)}
	if l.fetched[key] {
		l.mu.Unlock()
		return
	}
	l.fetched[key] = true
	l.mu.Unlock()

	for i := range l.Manifest.Objects {
		in := &l.Manifest.Objects[i]
		if in.Name == file.Name && in.Lazy {
			full := *in
			full.Lazy = false
			_ = l.feedObject(file, &full)
			return
		}
	}
}

// scanReferences walks the queued reference sites in priority order and
// routes still-undefined symbols through recovery or the diagnostic pool.
// Single-threaded by contract.
func (l *Link) scanReferences() {
	sort.SliceStable(l.refs, func(i, j int) bool {
		if l.refs[i].prio != l.refs[j].prio {
			return l.refs[i].prio < l.refs[j].prio
		}
		return l.refs[i].seq < l.refs[j].seq
	})
	for _, ref := range l.refs {
		s := l.Table.Find(ref.name)
		if s == nil || s.Kind() != symtab.KindUndefined {
			continue
		}
		if ref.isec != nil {
			l.Table.TreatUndefinedSymbolAt(s, ref.isec, ref.offset)
		} else {
			l.Table.TreatUndefinedSymbol(s, ref.source)
		}
	}
}
