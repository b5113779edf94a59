package pdu

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
)

// OffscreenBitmapCacheCapabilitySet represents the TS_OFFSCREEN_CAPABILITYSET
// structure (MS-RDPBCGR 2.2.7.2.6).
type OffscreenBitmapCacheCapabilitySet struct {
	OffscreenSupportLevel uint32 `struc:"little"`
	OffscreenCacheSize    uint16 `struc:"little"`
	OffscreenCacheEntries uint16 `struc:"little"`
}

// NewOffscreenBitmapCacheCapabilitySet creates a new OffscreenBitmapCacheCapabilitySet.
func NewOffscreenBitmapCacheCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:                 CapabilitySetTypeOffscreenBitmapCache,
		OffscreenBitmapCacheCapabilitySet: &OffscreenBitmapCacheCapabilitySet{},
	}
}

// Serialize encodes the capability set to wire format.
func (s *OffscreenBitmapCacheCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = struc.Pack(buf, s)

	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format.
func (s *OffscreenBitmapCacheCapabilitySet) Deserialize(wire io.Reader) error {
	return struc.Unpack(wire, s)
}
