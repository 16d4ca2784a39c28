// Package space implements the tagged address-space registry and the
// Varnode, the universal (space, offset, size) reference used throughout
// the LIR. Spaces are immutable once registered; a Varnode never owns
// storage.
package space

import "fmt"

// Kind tags the role an address space plays in the pipeline.
type Kind int

const (
	Constant Kind = iota
	Default
	Register
	Unique
	Other
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "const"
	case Default:
		return "ram"
	case Register:
		return "register"
	case Unique:
		return "unique"
	default:
		return "other"
	}
}

// Endian selects byte order for multi-byte reads/writes in a space.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// Space is a tagged record describing one address space.
type Space struct {
	Kind          Kind
	ID            int
	Name          string
	WordSize      uint   // bytes per addressable unit
	AddressSize   uint   // bytes of offset
	Endian        Endian
	HighestOffset uint64
}

// Registry holds every Space known to a decode session, indexed by ID and
// by name. It is built once (by the specification loader) and shared
// read-only thereafter — no global mutable state, per spec.md §9.
type Registry struct {
	byID   []*Space
	byName map[string]*Space
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Space)}
}

// Add registers a new space and returns it. IDs are assigned in
// registration order starting at 0.
func (r *Registry) Add(name string, kind Kind, wordSize, addressSize uint, endian Endian, highest uint64) *Space {
	sp := &Space{
		Kind:          kind,
		ID:            len(r.byID),
		Name:          name,
		WordSize:      wordSize,
		AddressSize:   addressSize,
		Endian:        endian,
		HighestOffset: highest,
	}
	r.byID = append(r.byID, sp)
	r.byName[name] = sp
	return sp
}

// ByID returns the space with the given ID, or nil if out of range.
func (r *Registry) ByID(id int) *Space {
	if id < 0 || id >= len(r.byID) {
		return nil
	}
	return r.byID[id]
}

// ByName looks up a space by its declared name ("ram", "register", ...).
func (r *Registry) ByName(name string) *Space {
	return r.byName[name]
}

// Default returns the first space of Kind Default, or nil.
func (r *Registry) Default() *Space {
	for _, sp := range r.byID {
		if sp.Kind == Default {
			return sp
		}
	}
	return nil
}

// Unique returns the first space of Kind Unique, or nil.
func (r *Registry) Unique() *Space {
	for _, sp := range r.byID {
		if sp.Kind == Unique {
			return sp
		}
	}
	return nil
}

// Register returns the first space of Kind Register, or nil.
func (r *Registry) Register() *Space {
	for _, sp := range r.byID {
		if sp.Kind == Register {
			return sp
		}
	}
	return nil
}

// Constant returns the first space of Kind Constant, or nil.
func (r *Registry) Constant() *Space {
	for _, sp := range r.byID {
		if sp.Kind == Constant {
			return sp
		}
	}
	return nil
}

// Varnode is the universal LIR operand reference: a location, not a value.
type Varnode struct {
	Space  *Space
	Offset uint64
	Size   uint // bytes
}

// IsConstant reports whether this varnode denotes an immediate value
// (offset IS the value) rather than a real location.
func (v Varnode) IsConstant() bool {
	return v.Space != nil && v.Space.Kind == Constant
}

func (v Varnode) String() string {
	if v.Space == nil {
		return "<nil-varnode>"
	}
	if v.IsConstant() {
		return fmt.Sprintf("0x%x:%d", v.Offset, v.Size)
	}
	return fmt.Sprintf("%s[0x%x,%d]", v.Space.Name, v.Offset, v.Size)
}

// WrapOffset wraps off into the space by masking it with HighestOffset;
// when HighestOffset is 0, off is returned unchanged. WordSize is not
// consulted: no word-size scaling is applied on wrap.
func (sp *Space) WrapOffset(off uint64) uint64 {
	if sp.HighestOffset == 0 {
		return off
	}
	return off & sp.HighestOffset
}
