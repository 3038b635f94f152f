package driver

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/blacktop/go-macho/types"

	"machlink/internal/config"
	"machlink/internal/symtab"
)

// Manifest is the pre-parsed description of one link invocation. Format
// decoding (Mach-O, archives, bitcode) is out of scope for the core; the
// manifest is what the external parsers hand over.
type Manifest struct {
	Config   ConfigSection  `toml:"config"`
	Objects  []ObjectInput  `toml:"objects"`
	Dylibs   []DylibInput   `toml:"dylibs"`
	Archives []ArchiveInput `toml:"archives"`
	Bitcode  []ObjectInput  `toml:"bitcode"`
}

// ConfigSection mirrors the link options the resolution core reads.
type ConfigSection struct {
	Namespace           string   `toml:"namespace"`
	Output              string   `toml:"output"`
	Undefined           string   `toml:"undefined"`
	Arch                string   `toml:"arch"`
	ArchMultiple        bool     `toml:"arch_multiple"`
	DynamicLookups      []string `toml:"dynamic_lookups"`
	DeadStripDuplicates bool     `toml:"dead_strip_duplicates"`
}

// SymbolRecord is one nlist-shaped entry of an input file. Attribute bits
// arrive as the raw n_type/n_desc bytes and are decoded with the Mach-O
// constants rather than re-encoded as booleans.
type SymbolRecord struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"` // defined | undefined | common

	Section string `toml:"section"` // "SEG,SECT" of a definition
	Value   uint64 `toml:"value"`
	Size    uint64 `toml:"size"`
	Align   uint32 `toml:"align"`

	Type uint8  `toml:"type"` // raw n_type
	Desc uint16 `toml:"desc"` // raw n_desc

	// SourceLoc is the debug-info location of a definition site, when the
	// producer had one.
	SourceLoc string `toml:"source_loc"`

	// Reference site of an undefined: either a code location...
	RefSection string `toml:"ref_section"`
	RefOffset  uint64 `toml:"ref_offset"`
	// ...or a free-form origin ("-exported_symbol", an entry point).
	RefSource string `toml:"ref_source"`
}

// ObjectInput is a relocatable object (or bitcode) input.
type ObjectInput struct {
	Name    string         `toml:"name"`
	Lazy    bool           `toml:"lazy"`
	Symbols []SymbolRecord `toml:"symbols"`
	Locals  []string       `toml:"locals"`
}

// DylibSymbolRecord is one export of a dynamic library.
type DylibSymbolRecord struct {
	Name string `toml:"name"`
	Weak bool   `toml:"weak"`
	Tlv  bool   `toml:"tlv"`
}

// DylibInput is a dynamic-library input.
type DylibInput struct {
	Name    string              `toml:"name"`
	Symbols []DylibSymbolRecord `toml:"symbols"`
}

// ArchiveInput is a static archive whose members load lazily.
type ArchiveInput struct {
	Name    string        `toml:"name"`
	Members []ObjectInput `toml:"members"`
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// DecodeManifest decodes a manifest from memory. Tests and the resolve
// command feed through here.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return &m, nil
}

// BuildConfig freezes the manifest's config section into the immutable
// snapshot the core reads.
func (m *Manifest) BuildConfig() (*config.Config, error) {
	cfg := config.Default()
	var err error
	if cfg.Namespace, err = config.ParseNamespace(m.Config.Namespace); err != nil {
		return nil, err
	}
	if cfg.OutputType, err = config.ParseOutputType(m.Config.Output); err != nil {
		return nil, err
	}
	if cfg.UndefinedTreatment, err = config.ParseUndefinedTreatment(m.Config.Undefined); err != nil {
		return nil, err
	}
	if cfg.Arch, err = config.ParseArch(m.Config.Arch); err != nil {
		return nil, err
	}
	cfg.ArchMultiple = m.Config.ArchMultiple
	cfg.DeadStripDuplicates = m.Config.DeadStripDuplicates
	if len(m.Config.DynamicLookups) > 0 {
		cfg.ExplicitDynamicLookups = make(map[string]struct{}, len(m.Config.DynamicLookups))
		for _, n := range m.Config.DynamicLookups {
			cfg.ExplicitDynamicLookups[n] = struct{}{}
		}
	}
	return cfg, nil
}

// The n_desc bit go-macho does not name: set on symbols the dynamic
// linker reaches behind the linker's back (crt1.o machinery).
const descReferencedDynamically = 0x0010

// definedOpts decodes the record's raw nlist bytes into resolver options.
func (r *SymbolRecord) definedOpts() symtab.DefinedOpts {
	desc := r.Desc
	weakDef := desc&uint16(types.WEAK_DEF) != 0
	return symtab.DefinedOpts{
		WeakDef:               weakDef,
		PrivateExtern:         types.NType(r.Type).IsPrivateExternalSym(),
		Thumb:                 desc&uint16(types.ARM_THUMB_DEF) != 0,
		ReferencedDynamically: desc&descReferencedDynamically != 0,
		NoDeadStrip:           desc&uint16(types.NO_DEAD_STRIP) != 0,
		// On a definition the weak-ref bit repurposes to "this weak def
		// may be hidden from the output".
		WeakDefCanBeHidden: weakDef && desc&uint16(types.WEAK_REF) != 0,
	}
}

// weakRef decodes the weak-reference bit of an undefined record.
func (r *SymbolRecord) weakRef() bool {
	return r.Desc&uint16(types.WEAK_REF) != 0
}

// privateExtern decodes the N_PEXT bit of a record's raw n_type.
func (r *SymbolRecord) privateExtern() bool {
	return types.NType(r.Type).IsPrivateExternalSym()
}

// splitSection parses "SEG,SECT".
func splitSection(s string) (seg, sect string, err error) {
	seg, sect, ok := strings.Cut(s, ",")
	if !ok || seg == "" || sect == "" {
		return "", "", fmt.Errorf("bad section name %q (want \"SEG,SECT\")", s)
	}
	return seg, sect, nil
}
