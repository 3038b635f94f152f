// Package symtab is the symbol-resolution core of the linker: it ingests
// name/binding records from heterogeneous input producers and maintains
// the single globally resolved table deciding which definition wins for
// each external name, which archive members get pulled in, and which
// references stay undefined.
//
// Slots are fixed-size cells with stable addresses; name collisions are
// handled by overwriting the slot's variant in place, so relocations and
// boundary lists holding *Symbol transparently observe the winner. The
// Add* entry points are the only concurrent write paths; reporting runs
// single-threaded after ingestion joins.
package symtab
