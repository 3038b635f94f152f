package symtab

import (
	"testing"

	"github.com/blacktop/go-macho/types"

	"machlink/internal/config"
	"machlink/internal/files"
	"machlink/internal/sections"
	"machlink/internal/trace"
)

// env bundles a table with registry-backed externals and fetch counters.
type env struct {
	fs  *files.Set
	reg *sections.Registry
	cfg *config.Config
	tab *Table

	fetches  []fetchCall
	extracts []string
	srcLocs  map[*sections.InputSection]map[uint64]string
}

type fetchCall struct {
	archive files.ID
	cookie  uint64
}

func newEnv(cfg *config.Config) *env {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &env{
		fs:      files.NewSet(),
		reg:     sections.NewRegistry(),
		cfg:     cfg,
		srcLocs: make(map[*sections.InputSection]map[uint64]string),
	}
	ext := Externals{
		FetchArchiveMember: func(archive *files.File, cookie uint64) {
			e.fetches = append(e.fetches, fetchCall{archive: archive.ID, cookie: cookie})
		},
		ExtractLazyObject: func(file *files.File, name string) {
			e.extracts = append(e.extracts, file.Name+":"+name)
		},
		MakeSyntheticSection: e.reg.MakeSynthetic,
		FindOutputSection:    e.reg.Find,
		OutputSectionFor:     e.reg.SectionFor,
		OutputSegment:        e.reg.Segment,
		SourceLocation: func(isec *sections.InputSection, off uint64) string {
			return e.srcLocs[isec][off]
		},
	}
	e.tab = New(cfg, e.fs, ext, trace.Nop, Hints{})
	return e
}

func (e *env) obj(name string, prio uint32) *files.File {
	return e.fs.New(name, files.KindObj, prio)
}

func (e *env) dylib(name string, prio uint32) *files.File {
	return e.fs.New(name, files.KindDylib, prio)
}

func (e *env) archive(name string, prio uint32) *files.File {
	return e.fs.New(name, files.KindArchive, prio)
}

func (e *env) member(name string, prio uint32) *files.File {
	f := e.fs.New(name, files.KindObj, prio)
	f.MarkLazyArchiveMember()
	return f
}

func (e *env) isec(f *files.File, seg, sect string) *sections.InputSection {
	isec := &sections.InputSection{File: f.ID, Seg: seg, Sect: sect, Live: true}
	e.reg.SectionFor(isec)
	return isec
}

func TestIdentityStability(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddUndefined("_f", objA.ID, false)
	if s == nil {
		t.Fatalf("AddUndefined returned nil")
	}
	if got := e.tab.AddDefined("_f", objB.ID, nil, 0, 0, DefinedOpts{}); got != s {
		t.Fatalf("AddDefined moved the slot: %p != %p", got, s)
	}
	if got := e.tab.Find("_f"); got != s {
		t.Fatalf("Find returned a different slot")
	}
	if s.Kind() != KindDefined {
		t.Fatalf("slot kind = %v, want defined", s.Kind())
	}
}

func TestRefStateMonotone(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)

	s := e.tab.AddUndefined("_x", obj.ID, true)
	if s.RefState() != RefWeak {
		t.Fatalf("refState = %v, want weak", s.RefState())
	}
	e.tab.AddUndefined("_x", obj.ID, false)
	if s.RefState() != RefStrong {
		t.Fatalf("refState = %v, want strong", s.RefState())
	}
	// A later weak reference must not lower it.
	e.tab.AddUndefined("_x", obj.ID, true)
	if s.RefState() != RefStrong {
		t.Fatalf("refState regressed to %v", s.RefState())
	}
}

func TestStickyRegularObjFlag(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)
	dy := e.dylib("liba.dylib", 2)

	s := e.tab.AddUndefined("_x", obj.ID, false)
	if !s.UsedInRegularObj() {
		t.Fatalf("expected usedInRegularObj after object reference")
	}
	e.tab.ResolveDylib("_x", dy.ID, false, false)
	if !s.UsedInRegularObj() {
		t.Fatalf("usedInRegularObj cleared by dylib resolution")
	}
}

func TestStrongWinsOverWeakDylib(t *testing.T) {
	e := newEnv(nil)
	dyA := e.dylib("liba.dylib", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddDylib("_f", dyA.ID, true, false)
	e.tab.AddUndefined("_f", objB.ID, false)
	if dyA.DylibRefs() != 1 {
		t.Fatalf("dylib refs = %d, want 1", dyA.DylibRefs())
	}

	isec := e.isec(objB, "__TEXT", "__text")
	got := e.tab.AddDefined("_f", objB.ID, isec, 0x10, 4, DefinedOpts{})
	if got != s {
		t.Fatalf("slot identity lost")
	}
	if s.Kind() != KindDefined {
		t.Fatalf("kind = %v, want defined", s.Kind())
	}
	if !s.Has(FlagOverridesWeakDef) {
		t.Fatalf("expected overridesWeakDef")
	}
	if dyA.DylibRefs() != 0 {
		t.Fatalf("dylib refs = %d after override, want 0", dyA.DylibRefs())
	}
	if n := len(collectDiags(e, t)); n != 0 {
		t.Fatalf("unexpected diagnostics: %d", n)
	}
}

func TestDuplicateStrongStrong(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	isecA := e.isec(objA, "__TEXT", "__text")
	isecB := e.isec(objB, "__TEXT", "__text")
	s := e.tab.AddDefined("_g", objA.ID, isecA, 0, 4, DefinedOpts{})
	e.tab.AddDefined("_g", objB.ID, isecB, 8, 4, DefinedOpts{})

	if s.File() != objA.ID {
		t.Fatalf("slot holds %v, want first-priority definition", s.File())
	}
	diags := collectDiags(e, t)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(diags))
	}
	if diags[0].Message != "duplicate symbol: _g" {
		t.Fatalf("message = %q", diags[0].Message)
	}
	if len(diags[0].Notes) != 2 {
		t.Fatalf("notes = %d, want both definition sites", len(diags[0].Notes))
	}
}

// The duplicate outcome must not depend on arrival order.
func TestDuplicateOrderIndependent(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddDefined("_g", objB.ID, nil, 8, 4, DefinedOpts{})
	e.tab.AddDefined("_g", objA.ID, nil, 0, 4, DefinedOpts{})

	if s.File() != objA.ID {
		t.Fatalf("slot holds %v, want the lower-priority file", s.File())
	}
	if len(collectDiags(e, t)) != 1 {
		t.Fatalf("expected one duplicate diagnostic")
	}
}

func TestWeakMerge(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddDefined("_w", objA.ID, nil, 0, 4, DefinedOpts{
		WeakDef: true, PrivateExtern: true,
	})
	e.tab.AddDefined("_w", objB.ID, nil, 0, 4, DefinedOpts{
		WeakDef: true, NoDeadStrip: true,
	})

	if s.File() != objA.ID {
		t.Fatalf("weak merge replaced the first definition")
	}
	if s.Has(FlagPrivateExtern) {
		t.Fatalf("privateExtern survived a non-private duplicate weak def")
	}
	if !s.Has(FlagNoDeadStrip) {
		t.Fatalf("noDeadStrip not merged")
	}
	if n := len(collectDiags(e, t)); n != 0 {
		t.Fatalf("weak defs produced %d diagnostics", n)
	}
}

func TestWeakLosesToStrong(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddDefined("_v", objA.ID, nil, 0, 4, DefinedOpts{WeakDef: true})
	e.tab.AddDefined("_v", objB.ID, nil, 8, 4, DefinedOpts{})

	if s.File() != objB.ID {
		t.Fatalf("strong definition lost to weak")
	}
	if s.IsWeakDef() {
		t.Fatalf("slot still weak")
	}
	if n := len(collectDiags(e, t)); n != 0 {
		t.Fatalf("unexpected diagnostics: %d", n)
	}
}

func TestLazyArchiveFetchOnPendingReference(t *testing.T) {
	e := newEnv(nil)
	objC := e.obj("c.o", 1)
	ar := e.archive("libx.a", 2)

	e.tab.AddLazyArchive("_h", ar.ID, 7)
	s := e.tab.AddUndefined("_h", objC.ID, false)

	if len(e.fetches) != 1 {
		t.Fatalf("fetches = %d, want exactly 1", len(e.fetches))
	}
	if e.fetches[0] != (fetchCall{archive: ar.ID, cookie: 7}) {
		t.Fatalf("fetched %+v", e.fetches[0])
	}

	// A second reference must not demand the member again.
	e.tab.AddUndefined("_h", objC.ID, false)
	if len(e.fetches) != 1 {
		t.Fatalf("fetches = %d after second reference", len(e.fetches))
	}

	// The fetch hook re-enters with the member's definition.
	member := e.member("libx.a(x.o)", 3)
	got := e.tab.AddDefined("_h", member.ID, nil, 0, 4, DefinedOpts{})
	if got != s || s.Kind() != KindDefined {
		t.Fatalf("member definition did not land in the original slot")
	}
}

func TestLazyArchiveOrderReversed(t *testing.T) {
	e := newEnv(nil)
	objC := e.obj("c.o", 1)
	ar := e.archive("libx.a", 2)

	// Reference first, lazy registration second.
	e.tab.AddUndefined("_h", objC.ID, false)
	e.tab.AddLazyArchive("_h", ar.ID, 9)

	if len(e.fetches) != 1 {
		t.Fatalf("fetches = %d, want 1", len(e.fetches))
	}
	if e.fetches[0].cookie != 9 {
		t.Fatalf("cookie = %d", e.fetches[0].cookie)
	}
}

func TestLazyArchiveSatisfiedByDefinition(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)
	ar := e.archive("libx.a", 2)

	e.tab.AddDefined("_k", obj.ID, nil, 0, 4, DefinedOpts{})
	s := e.tab.AddLazyArchive("_k", ar.ID, 1)

	if len(e.fetches) != 0 {
		t.Fatalf("definition already satisfied the name; fetches = %d", len(e.fetches))
	}
	if s.Kind() != KindDefined {
		t.Fatalf("kind = %v", s.Kind())
	}
}

func TestLazyArchiveWeakDylibInteraction(t *testing.T) {
	e := newEnv(nil)
	dy := e.dylib("liba.dylib", 1)
	ar := e.archive("libx.a", 2)

	// Unreferenced weak dylib import yields the slot to the lazy member.
	s := e.tab.AddDylib("_w", dy.ID, true, false)
	e.tab.AddLazyArchive("_w", ar.ID, 3)
	if s.Kind() != KindLazyArchive {
		t.Fatalf("kind = %v, want lazy-archive", s.Kind())
	}
	if len(e.fetches) != 0 {
		t.Fatalf("unreferenced weak dylib should not fetch")
	}

	// A referenced weak dylib import demands the member instead.
	obj := e.obj("b.o", 3)
	s2 := e.tab.AddDylib("_r", dy.ID, true, false)
	e.tab.AddUndefined("_r", obj.ID, false)
	e.tab.AddLazyArchive("_r", ar.ID, 4)
	if s2.Kind() != KindDylib {
		t.Fatalf("kind = %v, want dylib until the member lands", s2.Kind())
	}
	if len(e.fetches) != 1 || e.fetches[0].cookie != 4 {
		t.Fatalf("fetches = %+v", e.fetches)
	}
}

func TestLazyObjectExtract(t *testing.T) {
	e := newEnv(nil)
	lazy := e.obj("lazy.o", 1)
	obj := e.obj("a.o", 2)

	e.tab.AddLazyObject("_z", lazy.ID)
	e.tab.AddUndefined("_z", obj.ID, false)
	if len(e.extracts) != 1 || e.extracts[0] != "lazy.o:_z" {
		t.Fatalf("extracts = %v", e.extracts)
	}
}

func TestCommonMerge(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddCommon("_c", objA.ID, 8, 3, false)
	e.tab.AddCommon("_c", objB.ID, 16, 2, false)
	if s.Size() != 16 || s.File() != objB.ID {
		t.Fatalf("largest common did not win: size=%d file=%v", s.Size(), s.File())
	}
	e.tab.AddCommon("_c", objA.ID, 4, 1, false)
	if s.Size() != 16 {
		t.Fatalf("smaller common replaced the larger one")
	}
}

func TestCommonLosesToDefined(t *testing.T) {
	e := newEnv(nil)
	objA := e.obj("a.o", 1)
	objB := e.obj("b.o", 2)

	s := e.tab.AddCommon("_c", objA.ID, 8, 3, false)
	e.tab.AddDefined("_c", objB.ID, nil, 0, 8, DefinedOpts{})
	if s.Kind() != KindDefined {
		t.Fatalf("defined did not replace common")
	}

	// And a later common does not displace the definition.
	e.tab.AddCommon("_c", objA.ID, 64, 3, false)
	if s.Kind() != KindDefined {
		t.Fatalf("common displaced a defined")
	}
}

// The archive tie-break preserved from the captured behavior: both origin
// files lazy, common arriving with lower priority replaces the Defined.
func TestCommonArchiveTieBreak(t *testing.T) {
	e := newEnv(nil)
	m1 := e.member("lib.a(a.o)", 10)
	m2 := e.member("lib.a(b.o)", 20)

	s := e.tab.AddDefined("_c", m2.ID, nil, 0, 8, DefinedOpts{})
	e.tab.AddCommon("_c", m1.ID, 8, 3, false)
	if s.Kind() != KindCommon || s.File() != m1.ID {
		t.Fatalf("earlier member's common did not reclaim the slot: %v/%v", s.Kind(), s.File())
	}

	// The reverse direction never applies: a later lazy common loses.
	s2 := e.tab.AddDefined("_d", m1.ID, nil, 0, 8, DefinedOpts{})
	e.tab.AddCommon("_d", m2.ID, 8, 3, false)
	if s2.Kind() != KindDefined {
		t.Fatalf("later lazy common displaced the earlier defined")
	}
}

func TestDefinedLazyContest(t *testing.T) {
	e := newEnv(nil)
	m1 := e.member("lib.a(a.o)", 10)
	m2 := e.member("lib.a(b.o)", 20)

	// Both lazy: the earlier member wins regardless of arrival order.
	s := e.tab.AddDefined("_f", m2.ID, nil, 0, 4, DefinedOpts{})
	e.tab.AddDefined("_f", m1.ID, nil, 0, 4, DefinedOpts{})
	if s.File() != m1.ID {
		t.Fatalf("slot holds %v, want the earlier member", s.File())
	}

	// A non-lazy existing definition always beats a lazy member.
	obj := e.obj("main.o", 1)
	s2 := e.tab.AddDefined("_g", obj.ID, nil, 0, 4, DefinedOpts{})
	e.tab.AddDefined("_g", m2.ID, nil, 0, 4, DefinedOpts{})
	if s2.File() != obj.ID {
		t.Fatalf("lazy member displaced a regular definition")
	}
	if n := len(collectDiags(e, t)); n != 0 {
		t.Fatalf("lazy contests are not duplicates: %d diags", n)
	}
}

func TestBitcodeNeverLosesToLazy(t *testing.T) {
	e := newEnv(nil)
	bc := e.fs.New("a.bc", files.KindBitcode, 5)
	m := e.member("lib.a(b.o)", 1)

	s := e.tab.AddDefined("_f", bc.ID, nil, 0, 4, DefinedOpts{})
	e.tab.AddDefined("_f", m.ID, nil, 0, 4, DefinedOpts{})
	if s.File() != bc.ID {
		t.Fatalf("bitcode definition lost to an archive member")
	}
}

func TestBitcodeUndefinedKeepsFileOnReplace(t *testing.T) {
	e := newEnv(nil)
	bc := e.fs.New("a.bc", files.KindBitcode, 1)
	obj := e.obj("compiled.o", 2)

	s := e.tab.AddBitcodeUndefined("_f", bc.ID, false)
	if !s.WasBitcodeSymbol() {
		t.Fatalf("bitcode flag not set")
	}
	e.tab.AddDefined("_f", obj.ID, nil, 0, 4, DefinedOpts{})
	if s.File() != bc.ID {
		t.Fatalf("replacement dropped the bitcode file handle: %v", s.File())
	}
	if s.Kind() != KindDefined {
		t.Fatalf("kind = %v", s.Kind())
	}
}

func TestResolveDylib(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)
	dyA := e.dylib("liba.dylib", 2)
	dyB := e.dylib("libb.dylib", 3)

	// Undefined upgraded to dylib import, refState preserved.
	s := e.tab.AddUndefined("_f", obj.ID, false)
	e.tab.ResolveDylib("_f", dyA.ID, false, false)
	if s.Kind() != KindDylib || s.RefState() != RefStrong {
		t.Fatalf("kind=%v refState=%v", s.Kind(), s.RefState())
	}
	if dyA.DylibRefs() != 1 {
		t.Fatalf("dylib refs = %d", dyA.DylibRefs())
	}

	// A strong import replaces a weak one.
	w := e.tab.ResolveDylib("_w", dyA.ID, true, false)
	e.tab.ResolveDylib("_w", dyB.ID, false, false)
	if w.IsWeakDef() || w.File() != dyB.ID {
		t.Fatalf("strong dylib import did not replace the weak one")
	}

	// A weak import does not displace an existing strong import.
	e.tab.ResolveDylib("_w", dyA.ID, true, false)
	if w.File() != dyB.ID {
		t.Fatalf("weak import displaced strong")
	}
}

func TestDynamicLookupUpgrade(t *testing.T) {
	e := newEnv(nil)
	dy := e.dylib("liba.dylib", 1)

	s := e.tab.AddDynamicLookup("_f")
	if !s.IsDynamicLookup() {
		t.Fatalf("expected dynamic lookup")
	}
	// A real dylib upgrades a dynamic lookup.
	e.tab.ResolveDylib("_f", dy.ID, false, false)
	if s.IsDynamicLookup() || s.File() != dy.ID {
		t.Fatalf("dynamic lookup not upgraded")
	}
	// But not the other way around.
	e.tab.AddDynamicLookup("_f")
	if s.File() != dy.ID {
		t.Fatalf("dynamic lookup displaced a real dylib")
	}
}

func TestResolveDylibMarksOverriddenWeak(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)
	dy := e.dylib("liba.dylib", 2)

	s := e.tab.AddDefined("_f", obj.ID, nil, 0, 4, DefinedOpts{})
	e.tab.ResolveDylib("_f", dy.ID, true, false)
	if s.Kind() != KindDefined {
		t.Fatalf("defined lost its slot to a weak dylib import")
	}
	if !s.Has(FlagOverridesWeakDef) {
		t.Fatalf("overridesWeakDef not set on the surviving defined")
	}
}

func TestAliasDefined(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)
	isec := e.isec(obj, "__TEXT", "__text")

	src := e.tab.AddDefined("_impl", obj.ID, isec, 0x20, 8, DefinedOpts{WeakDef: true})
	alias := e.tab.AliasDefined(src, "_alias", obj.ID, true)
	if alias == nil || alias == src {
		t.Fatalf("alias did not create a distinct slot")
	}
	if alias.InputSection() != isec || alias.Value() != 0x20 || alias.Size() != 8 {
		t.Fatalf("alias did not share the source location")
	}
	if !alias.Has(FlagPrivateExtern) {
		t.Fatalf("makePrivateExtern not applied")
	}
	if !alias.IsWeakDef() {
		t.Fatalf("alias dropped weakness")
	}
}

func TestInterposableUnderFlatNamespace(t *testing.T) {
	cfg := config.Default()
	cfg.Namespace = config.NamespaceFlat
	cfg.OutputType = types.MH_DYLIB
	e := newEnv(cfg)
	obj := e.obj("a.o", 1)

	s := e.tab.AddDefined("_f", obj.ID, nil, 0, 4, DefinedOpts{})
	if !s.Has(FlagInterposable) {
		t.Fatalf("flat-namespace dylib extern must be interposable")
	}
	p := e.tab.AddDefined("_p", obj.ID, nil, 0, 4, DefinedOpts{PrivateExtern: true})
	if p.Has(FlagInterposable) {
		t.Fatalf("private extern must not be interposable")
	}
}

func TestEagerVariants(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 1)

	s := e.tab.AddDefinedEager("_e", obj.ID, nil, 0, 4, DefinedOpts{})
	if s.Kind() != KindDefined {
		t.Fatalf("kind = %v", s.Kind())
	}
	u := e.tab.AddUndefinedEager("_u", obj.ID, true)
	if u.Kind() != KindUndefined || u.RefState() != RefWeak {
		t.Fatalf("eager undefined mis-installed")
	}
	c := e.tab.AddCommonEager("_m", obj.ID, 8, 2, false)
	if c.Kind() != KindCommon || c.Size() != 8 {
		t.Fatalf("eager common mis-installed")
	}
}
