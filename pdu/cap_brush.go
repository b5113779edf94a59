package pdu

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
)

// BrushSupportLevel indicates the level of brush support as defined in MS-RDPBCGR section 2.2.7.1.7.
type BrushSupportLevel uint32

const (
	// BrushSupportLevelDefault BRUSH_DEFAULT
	BrushSupportLevelDefault BrushSupportLevel = 0

	// BrushSupportLevelColor8x8 BRUSH_COLOR_8x8
	BrushSupportLevelColor8x8 BrushSupportLevel = 1

	// BrushSupportLevelFull BRUSH_COLOR_FULL
	BrushSupportLevelFull BrushSupportLevel = 2
)

// BrushCapabilitySet advertises brush capabilities as defined in MS-RDPBCGR section 2.2.7.1.7.
type BrushCapabilitySet struct {
	BrushSupportLevel BrushSupportLevel `struc:"uint32,little"`
}

// NewBrushCapabilitySet creates a BrushCapabilitySet with default values.
func NewBrushCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:  CapabilitySetTypeBrush,
		BrushCapabilitySet: &BrushCapabilitySet{},
	}
}

// Serialize encodes the BrushCapabilitySet to wire format.
func (s *BrushCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = struc.Pack(buf, s)

	return buf.Bytes()
}

// Deserialize decodes the BrushCapabilitySet from wire format.
func (s *BrushCapabilitySet) Deserialize(wire io.Reader) error {
	return struc.Unpack(wire, s)
}

// CacheDefinition describes a glyph cache entry as defined in MS-RDPBCGR section 2.2.7.1.8.
type CacheDefinition struct {
	CacheEntries         uint16 `struc:"little"`
	CacheMaximumCellSize uint16 `struc:"little"`
}

// Serialize encodes the CacheDefinition to wire format.
func (d *CacheDefinition) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = struc.Pack(buf, d)

	return buf.Bytes()
}

// Deserialize decodes the CacheDefinition from wire format.
func (d *CacheDefinition) Deserialize(wire io.Reader) error {
	return struc.Unpack(wire, d)
}
