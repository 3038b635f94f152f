package symtab

import (
	"testing"

	"machlink/internal/files"
)

func TestRankOrder(t *testing.T) {
	e := newEnv(nil)
	obj := e.obj("a.o", 3)
	dy := e.dylib("liba.dylib", 3)
	member := e.member("lib.a(x.o)", 3)

	cases := []struct {
		name     string
		file     files.ID
		isCommon bool
		isWeak   bool
		want     uint64
	}{
		{"synthetic", files.None, false, false, 7 << 24},
		{"common lazy", member.ID, true, false, 6<<24 + 3},
		{"common", obj.ID, true, false, 5<<24 + 3},
		{"dylib weak", dy.ID, false, true, 4<<24 + 3},
		{"lazy weak", member.ID, false, true, 4<<24 + 3},
		{"dylib strong", dy.ID, false, false, 3<<24 + 3},
		{"lazy strong", member.ID, false, false, 3<<24 + 3},
		{"regular weak", obj.ID, false, true, 2<<24 + 3},
		{"regular strong", obj.ID, false, false, 1<<24 + 3},
	}
	for _, tc := range cases {
		if got := e.tab.rank(tc.file, tc.isCommon, tc.isWeak); got != tc.want {
			t.Errorf("rank(%s) = %#x, want %#x", tc.name, got, tc.want)
		}
	}
}

func TestRankPriorityTieBreak(t *testing.T) {
	e := newEnv(nil)
	early := e.obj("a.o", 1)
	late := e.obj("b.o", 2)

	if !(e.tab.rank(early.ID, false, false) < e.tab.rank(late.ID, false, false)) {
		t.Fatalf("earlier file must rank lower")
	}
	// Class dominates priority: a weak regular def still beats a strong
	// dylib regardless of order on the command line.
	dy := e.dylib("lib.dylib", 0)
	if !(e.tab.rank(late.ID, false, true) < e.tab.rank(dy.ID, false, false)) {
		t.Fatalf("weak regular must outrank strong dylib")
	}
}
