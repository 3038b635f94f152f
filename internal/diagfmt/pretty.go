package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"machlink/internal/diag"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	infoColor = color.New(color.FgCyan, color.Bold)
	noteColor = color.New(color.FgHiBlack)
)

// Pretty renders diagnostics in the classic linker shape:
//
//	ld: error: undefined symbol: _prntf
//	>>> referenced by main.o:(__TEXT,__text)+0x10
//	>>> did you mean: _printf
//
// One diagnostic per block; notes carry the ">>>" prefix. The caller
// sorts or dedups the bag beforehand if it wants to.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	for _, d := range bag.Items() {
		fmt.Fprintf(w, "ld: %s: %s\n", severityLabel(d.Severity, opts.Color), clip(d.Message, opts.Width))
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			line := ">>> " + n.Msg
			if opts.Color {
				line = noteColor.Sprint(line)
			}
			fmt.Fprintln(w, clip(line, opts.Width))
		}
	}
}

func severityLabel(sev diag.Severity, colored bool) string {
	label := strings.ToLower(sev.String())
	if !colored {
		return label
	}
	switch sev {
	case diag.SevError:
		return errColor.Sprint(label)
	case diag.SevWarning:
		return warnColor.Sprint(label)
	default:
		return infoColor.Sprint(label)
	}
}

// clip truncates a rendered line to width terminal cells. Symbol names are
// arbitrary bytes, so cell width is measured, not byte length.
func clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
