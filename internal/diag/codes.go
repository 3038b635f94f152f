package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Input ingestion
	InpInfo           Code = 1000
	InpManifestSyntax Code = 1001
	InpBadSymbolKind  Code = 1002
	InpBadSectionName Code = 1003
	InpMissingMember  Code = 1004

	// Resolution
	ResolveInfo            Code = 2000
	ResolveDuplicateSymbol Code = 2001
	ResolveUndefinedSymbol Code = 2002

	// Reporting / driver
	ReportInfo          Code = 3000
	ReportSnapshotStale Code = 3001
)

// String renders the stable "LDxxxx" form used in output and tests.
func (c Code) String() string {
	return fmt.Sprintf("LD%04d", uint16(c))
}
