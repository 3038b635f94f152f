package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"machlink/internal/diag"
	"machlink/internal/symtab"
)

// Current schema version - increment when SnapshotPayload format changes
const snapshotSchemaVersion uint16 = 1

// SnapshotSymbol is the serialized resolution of one name.
type SnapshotSymbol struct {
	Name          string
	Kind          uint8
	File          string
	Value         uint64
	Size          uint64
	WeakDef       bool
	PrivateExtern bool
	RefState      uint8
	DynamicLookup bool
}

// SnapshotPayload caches the fully resolved table for fast re-links and
// offline inspection.
type SnapshotPayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	// ManifestHash keys the snapshot to its exact inputs.
	ManifestHash string

	Arch     string
	Errors   int
	Warnings int
	Symbols  []SnapshotSymbol
}

// ManifestHash fingerprints the manifest bytes.
func ManifestHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Snapshot serializes the link result in name order.
func (l *Link) Snapshot(manifestHash string) *SnapshotPayload {
	syms := l.Table.Symbols()
	sort.Slice(syms, func(i, j int) bool { return syms[i].Name() < syms[j].Name() })

	p := &SnapshotPayload{
		Schema:       snapshotSchemaVersion,
		ManifestHash: manifestHash,
		Arch:         l.Cfg.ArchName(),
	}
	for _, d := range l.Bag.Items() {
		switch d.Severity {
		case diag.SevError:
			p.Errors++
		case diag.SevWarning:
			p.Warnings++
		}
	}
	for _, s := range syms {
		p.Symbols = append(p.Symbols, SnapshotSymbol{
			Name:          s.Name(),
			Kind:          uint8(s.Kind()),
			File:          l.Files.Name(s.File()),
			Value:         s.Value(),
			Size:          s.Size(),
			WeakDef:       s.IsWeakDef(),
			PrivateExtern: s.Has(symtab.FlagPrivateExtern),
			RefState:      uint8(s.RefState()),
			DynamicLookup: s.IsDynamicLookup(),
		})
	}
	return p
}

// WriteSnapshot stores the payload under dir, keyed by manifest hash.
func WriteSnapshot(dir string, p *SnapshotPayload) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("snapshot encode: %w", err)
	}
	path := filepath.Join(dir, p.ManifestHash[:16]+".mlk")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSnapshot loads a payload and validates its schema.
func ReadSnapshot(path string) (*SnapshotPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p SnapshotPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	if p.Schema != snapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot schema %d unsupported (want %d)", p.Schema, snapshotSchemaVersion)
	}
	return &p, nil
}
