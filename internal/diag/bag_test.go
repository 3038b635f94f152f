package diag

import "testing"

func TestBagLimit(t *testing.T) {
	b := NewBag(2)
	if !b.Add(NewWarning(ResolveDuplicateSymbol, "one")) {
		t.Fatalf("first add rejected")
	}
	if !b.Add(NewError(ResolveUndefinedSymbol, "two")) {
		t.Fatalf("second add rejected")
	}
	if b.Add(NewError(ResolveUndefinedSymbol, "three")) {
		t.Fatalf("bag exceeded its limit")
	}
	if b.Len() != 2 {
		t.Fatalf("len = %d", b.Len())
	}
}

func TestBagSeverityQueries(t *testing.T) {
	b := NewBag(10)
	b.Add(NewWarning(ResolveDuplicateSymbol, "dup"))
	if b.HasErrors() {
		t.Fatalf("warning counted as error")
	}
	if !b.HasWarnings() {
		t.Fatalf("warning not seen")
	}
	b.Add(NewError(ResolveUndefinedSymbol, "undef"))
	if !b.HasErrors() {
		t.Fatalf("error not seen")
	}
}

func TestBagSortAndDedup(t *testing.T) {
	b := NewBag(10)
	b.Add(NewWarning(ResolveDuplicateSymbol, "dup").WithSymbol("_b"))
	b.Add(NewError(ResolveUndefinedSymbol, "undef").WithSymbol("_a"))
	b.Add(NewWarning(ResolveDuplicateSymbol, "dup").WithSymbol("_b"))

	b.Sort()
	if b.Items()[0].Severity != SevError {
		t.Fatalf("errors must sort first")
	}
	b.Dedup()
	if b.Len() != 2 {
		t.Fatalf("dedup kept %d", b.Len())
	}
}

func TestBagMergeGrows(t *testing.T) {
	a := NewBag(1)
	a.Add(NewWarning(ResolveDuplicateSymbol, "one"))
	other := NewBag(2)
	other.Add(NewError(ResolveUndefinedSymbol, "two"))
	other.Add(NewError(ResolveUndefinedSymbol, "three"))

	a.Merge(other)
	if a.Len() != 3 {
		t.Fatalf("merge lost items: %d", a.Len())
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	d := NewWarning(ResolveDuplicateSymbol, "dup").WithSymbol("_x")
	r.Report(d)
	r.Report(d)
	if bag.Len() != 1 {
		t.Fatalf("dedup reporter passed %d", bag.Len())
	}
}

func TestNotesAccumulate(t *testing.T) {
	d := NewError(ResolveUndefinedSymbol, "undefined symbol: _x").
		WithNote("referenced by a.o").
		WithNote("did you mean: _y")
	if len(d.Notes) != 2 {
		t.Fatalf("notes = %d", len(d.Notes))
	}
	if d.Code.String() != "LD2002" {
		t.Fatalf("code = %q", d.Code.String())
	}
}
