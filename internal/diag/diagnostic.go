package diag

// Note is a secondary ">>> ..." line attached to a diagnostic, e.g.
// "defined in foo.o" or "referenced by bar.o:(__TEXT,__text)+0x10".
type Note struct {
	Msg string
}

// Diagnostic is a single deferred linker finding. The resolution core
// produces these; rendering lives in internal/diagfmt.
type Diagnostic struct {
	Severity Severity
	Code     Code
	// Symbol carries the demangler-ready symbol name when the diagnostic
	// concerns one; empty otherwise.
	Symbol  string
	Message string
	Notes   []Note
}
