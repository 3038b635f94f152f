package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"machlink/internal/driver"
	"machlink/internal/symtab"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <snapshot>",
	Short: "Print a cached resolution snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	p, err := driver.ReadSnapshot(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "manifest %s  arch %s  %d symbols  %d errors  %d warnings\n",
		p.ManifestHash[:16], p.Arch, len(p.Symbols), p.Errors, p.Warnings)

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tKIND\tFILE\tVALUE\tSIZE\tREF")
	for _, s := range p.Symbols {
		kind := symtab.Kind(s.Kind).String()
		if s.DynamicLookup {
			kind = "dynamic-lookup"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t0x%x\t%d\t%d\n", s.Name, kind, s.File, s.Value, s.Size, s.RefState)
	}
	return nil
}
