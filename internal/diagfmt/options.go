package diagfmt

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color bool
	// Width caps rendered line width; 0 means unbounded. Long demangled
	// symbol names otherwise wrap badly in narrow terminals.
	Width     int
	ShowNotes bool
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	IncludeNotes bool
	// Max truncates the emitted list, not the bag. 0 means all.
	Max int
}
