package pdu

import (
	"encoding/binary"
	"fmt"
)

// PointerPositionUpdate is TS_POINTER_POSITION_ATTRIBUTE (MS-RDPBCGR
// 2.2.9.1.1.4.2 / 2.2.9.1.2.3): moves the client-rendered cursor
// without changing its image.
type PointerPositionUpdate struct {
	X, Y uint16
}

// DecodePointerPositionUpdate decodes a FASTPATH_UPDATETYPE_PTR_POSITION
// update body.
func DecodePointerPositionUpdate(data []byte) (PointerPositionUpdate, error) {
	if len(data) < 4 {
		return PointerPositionUpdate{}, fmt.Errorf("pdu: pointer position update truncated")
	}
	return PointerPositionUpdate{
		X: binary.LittleEndian.Uint16(data[0:2]),
		Y: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// CachedPointerUpdate is TS_CACHEDPOINTER_ATTRIBUTE (MS-RDPBCGR
// 2.2.9.1.1.4.3): switch the visible cursor to a previously cached
// pointer image by index.
type CachedPointerUpdate struct {
	CacheIndex uint16
}

// DecodeCachedPointerUpdate decodes a FASTPATH_UPDATETYPE_CACHED update body.
func DecodeCachedPointerUpdate(data []byte) (CachedPointerUpdate, error) {
	if len(data) < 2 {
		return CachedPointerUpdate{}, fmt.Errorf("pdu: cached pointer update truncated")
	}
	return CachedPointerUpdate{CacheIndex: binary.LittleEndian.Uint16(data[0:2])}, nil
}

// ColorPointerUpdate is TS_COLORPOINTERATTRIBUTE (MS-RDPBCGR
// 2.2.9.1.1.4.4): a full cursor image, AND/XOR mask pair plus hotspot
// and cache slot.
type ColorPointerUpdate struct {
	CacheIndex           uint16
	HotSpotX, HotSpotY   uint16
	Width, Height        uint16
	XorBpp               uint16 // 24 for the classic (non-"New") color pointer
	AndMaskData          []byte
	XorMaskData          []byte
}

// DecodeColorPointerUpdate decodes a FASTPATH_UPDATETYPE_COLOR update
// body (classic 24bpp color pointer, xorBpp fixed at 24).
func DecodeColorPointerUpdate(data []byte) (ColorPointerUpdate, error) {
	u, err := decodeColorPointerBody(data, true)
	if err != nil {
		return ColorPointerUpdate{}, err
	}
	u.XorBpp = 24
	return u, nil
}

// DecodeNewPointerUpdate decodes a FASTPATH_UPDATETYPE_POINTER update
// body (TS_POINTERATTRIBUTE, MS-RDPBCGR 2.2.9.1.1.4.5): identical to
// the color pointer body except for a leading xorBpp field, used when
// the Large Pointer or >24bpp cursor capability was negotiated.
func DecodeNewPointerUpdate(data []byte) (ColorPointerUpdate, error) {
	if len(data) < 2 {
		return ColorPointerUpdate{}, fmt.Errorf("pdu: new pointer update truncated")
	}
	xorBpp := binary.LittleEndian.Uint16(data[0:2])
	u, err := decodeColorPointerBody(data[2:], false)
	if err != nil {
		return ColorPointerUpdate{}, err
	}
	u.XorBpp = xorBpp
	return u, nil
}

// decodeColorPointerBody parses the common cacheIndex/hotspot/width/
// height/lengthAndMask/lengthXorMask/andMaskData/xorMaskData tail both
// pointer update shapes share. The trailing pad byte present only in
// the classic color pointer (classicPad) is consumed when requested.
func decodeColorPointerBody(data []byte, classicPad bool) (ColorPointerUpdate, error) {
	if len(data) < 14 {
		return ColorPointerUpdate{}, fmt.Errorf("pdu: color pointer update truncated")
	}
	u := ColorPointerUpdate{
		CacheIndex: binary.LittleEndian.Uint16(data[0:2]),
		HotSpotX:   binary.LittleEndian.Uint16(data[2:4]),
		HotSpotY:   binary.LittleEndian.Uint16(data[4:6]),
		Width:      binary.LittleEndian.Uint16(data[6:8]),
		Height:     binary.LittleEndian.Uint16(data[8:10]),
	}
	lengthAndMask := int(binary.LittleEndian.Uint16(data[10:12]))
	lengthXorMask := int(binary.LittleEndian.Uint16(data[12:14]))
	offset := 14
	if offset+lengthXorMask > len(data) {
		return ColorPointerUpdate{}, fmt.Errorf("pdu: xorMaskData truncated")
	}
	u.XorMaskData = data[offset : offset+lengthXorMask]
	offset += lengthXorMask
	if offset+lengthAndMask > len(data) {
		return ColorPointerUpdate{}, fmt.Errorf("pdu: andMaskData truncated")
	}
	u.AndMaskData = data[offset : offset+lengthAndMask]
	offset += lengthAndMask
	if classicPad && offset < len(data) {
		offset++ // pad(1) present on TS_COLORPOINTERATTRIBUTE only
	}
	return u, nil
}

// PlaySoundPDUData is TS_PLAY_SOUND_PDU_DATA (MS-RDPBCGR 2.2.9.1.1.5.1
// via PDUTYPE2_PLAY_SOUND), a server-requested simple system beep.
type PlaySoundPDUData struct {
	DurationMS  uint32
	FrequencyHz uint32
}

// DecodePlaySoundPDU decodes a PDUTYPE2_PLAY_SOUND share data body.
func DecodePlaySoundPDU(data []byte) (PlaySoundPDUData, error) {
	if len(data) < 8 {
		return PlaySoundPDUData{}, fmt.Errorf("pdu: play sound pdu truncated")
	}
	return PlaySoundPDUData{
		DurationMS:  binary.LittleEndian.Uint32(data[0:4]),
		FrequencyHz: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}
