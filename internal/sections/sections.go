package sections

import (
	"fmt"
	"sync"

	"machlink/internal/files"
)

// InputSection is the resolution core's view of a chunk of input content.
// The core never reads section bytes; it only needs identity, liveness and
// a parent output container for boundary synthesis.
type InputSection struct {
	File      files.ID
	Seg, Sect string
	Size      uint64
	Live      bool
	Synthetic bool
	Parent    *OutputSection
}

// Location renders "file(seg,sect)+0xoff" for diagnostics. Always nonempty.
func (isec *InputSection) Location(fs *files.Set, off uint64) string {
	name := "<internal>"
	if isec.File.IsValid() {
		name = fs.Name(isec.File)
	}
	return fmt.Sprintf("%s:(%s,%s)+0x%x", name, isec.Seg, isec.Sect, off)
}

// Boundary is the narrow view output containers keep of the synthetic
// start/end symbols attached to them. The symbol table owns the symbols;
// layout walks these lists once addresses are known.
type Boundary interface {
	SymbolName() string
}

// OutputSection collects the input sections destined for one (seg,sect)
// pair of the final image, plus any boundary symbols pinned to it.
type OutputSection struct {
	Seg, Sect    string
	Inputs       []*InputSection
	StartSymbols []Boundary
	EndSymbols   []Boundary
}

// OutputSegment mirrors OutputSection one level up.
type OutputSegment struct {
	Name         string
	StartSymbols []Boundary
	EndSymbols   []Boundary
}

type sectionKey struct{ seg, sect string }

// Registry is the process-wide map of output containers. It backs the
// synthetic-section contracts the resolver consumes: sections and segments
// are created on demand and live until the end of the link.
type Registry struct {
	mu       sync.Mutex
	sections map[sectionKey]*OutputSection
	segments map[string]*OutputSegment
	order    []*OutputSection
	segOrder []*OutputSegment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sections: make(map[sectionKey]*OutputSection),
		segments: make(map[string]*OutputSegment),
	}
}

// Find returns the output section for (seg,sect) or nil.
func (r *Registry) Find(seg, sect string) *OutputSection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sections[sectionKey{seg, sect}]
}

// SectionFor returns the output section an input section concatenates
// into, creating it on first use. The input's parent link is set and the
// input recorded.
func (r *Registry) SectionFor(isec *InputSection) *OutputSection {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sectionKey{isec.Seg, isec.Sect}
	osec := r.sections[key]
	if osec == nil {
		osec = &OutputSection{Seg: isec.Seg, Sect: isec.Sect}
		r.sections[key] = osec
		r.order = append(r.order, osec)
	}
	isec.Parent = osec
	osec.Inputs = append(osec.Inputs, isec)
	return osec
}

// Segment returns the output segment with the given name, creating it on
// first use.
func (r *Registry) Segment(name string) *OutputSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg := r.segments[name]
	if seg == nil {
		seg = &OutputSegment{Name: name}
		r.segments[name] = seg
		r.segOrder = append(r.segOrder, seg)
	}
	return seg
}

// MakeSynthetic fabricates an empty input section for a (seg,sect) pair
// that no real input provided. Used by boundary-symbol recovery.
func (r *Registry) MakeSynthetic(seg, sect string) *InputSection {
	return &InputSection{
		File:      files.None,
		Seg:       seg,
		Sect:      sect,
		Synthetic: true,
	}
}

// Sections returns output sections in creation order.
func (r *Registry) Sections() []*OutputSection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*OutputSection, len(r.order))
	copy(out, r.order)
	return out
}

// Segments returns output segments in creation order.
func (r *Registry) Segments() []*OutputSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*OutputSegment, len(r.segOrder))
	copy(out, r.segOrder)
	return out
}
