package config

import (
	"fmt"

	"github.com/blacktop/go-macho/types"
)

// NamespaceKind selects the dyld binding namespace.
type NamespaceKind uint8

const (
	// NamespaceTwoLevel binds each import to a specific dylib.
	NamespaceTwoLevel NamespaceKind = iota
	// NamespaceFlat makes dylib externs interposable at load time.
	NamespaceFlat
)

func (k NamespaceKind) String() string {
	if k == NamespaceFlat {
		return "flat"
	}
	return "two-level"
}

// ParseNamespace converts a manifest string to a NamespaceKind.
func ParseNamespace(s string) (NamespaceKind, error) {
	switch s {
	case "", "two-level", "twolevel":
		return NamespaceTwoLevel, nil
	case "flat":
		return NamespaceFlat, nil
	default:
		return NamespaceTwoLevel, fmt.Errorf("invalid namespace: %q (expected: two-level|flat)", s)
	}
}

// UndefinedTreatment selects what an unresolved reference becomes.
type UndefinedTreatment uint8

const (
	UndefinedError UndefinedTreatment = iota
	UndefinedWarning
	UndefinedSuppress
	UndefinedDynamicLookup
)

func (t UndefinedTreatment) String() string {
	switch t {
	case UndefinedWarning:
		return "warning"
	case UndefinedSuppress:
		return "suppress"
	case UndefinedDynamicLookup:
		return "dynamic_lookup"
	default:
		return "error"
	}
}

// ParseUndefinedTreatment converts a manifest string to an UndefinedTreatment.
func ParseUndefinedTreatment(s string) (UndefinedTreatment, error) {
	switch s {
	case "", "error":
		return UndefinedError, nil
	case "warning":
		return UndefinedWarning, nil
	case "suppress":
		return UndefinedSuppress, nil
	case "dynamic_lookup", "dynamic-lookup":
		return UndefinedDynamicLookup, nil
	default:
		return UndefinedError, fmt.Errorf("invalid undefined treatment: %q (expected: error|warning|suppress|dynamic_lookup)", s)
	}
}

// ParseOutputType converts a manifest string to a Mach-O header type.
func ParseOutputType(s string) (types.HeaderFileType, error) {
	switch s {
	case "", "executable":
		return types.MH_EXECUTE, nil
	case "dylib":
		return types.MH_DYLIB, nil
	case "bundle":
		return types.MH_BUNDLE, nil
	case "object":
		return types.MH_OBJECT, nil
	default:
		return types.MH_EXECUTE, fmt.Errorf("invalid output type: %q (expected: executable|dylib|bundle|object)", s)
	}
}

// ParseArch converts an arch name to its Mach-O CPU value.
func ParseArch(s string) (types.CPU, error) {
	switch s {
	case "", "arm64":
		return types.CPUArm64, nil
	case "x86_64", "amd64":
		return types.CPUAmd64, nil
	case "arm":
		return types.CPUArm, nil
	case "i386":
		return types.CPUI386, nil
	default:
		return types.CPUArm64, fmt.Errorf("invalid arch: %q", s)
	}
}

// Config is the frozen snapshot of link options the resolution core reads.
// It is immutable once the link starts; the driver builds it before any
// input is fed.
type Config struct {
	Namespace              NamespaceKind
	OutputType             types.HeaderFileType
	UndefinedTreatment     UndefinedTreatment
	ExplicitDynamicLookups map[string]struct{}
	ArchMultiple           bool
	Arch                   types.CPU
	DeadStripDuplicates    bool
}

// Default returns the configuration of a plain two-level executable link.
func Default() *Config {
	return &Config{
		Namespace:          NamespaceTwoLevel,
		OutputType:         types.MH_EXECUTE,
		UndefinedTreatment: UndefinedError,
		Arch:               types.CPUArm64,
	}
}

// IsExplicitDynamicLookup reports whether name was listed via -U.
func (c *Config) IsExplicitDynamicLookup(name string) bool {
	_, ok := c.ExplicitDynamicLookups[name]
	return ok
}

// ArchName returns the printable architecture name for diagnostics.
func (c *Config) ArchName() string {
	return c.Arch.String()
}
