package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf16"
)

// EncodeUTF16 converts a string to UTF-16LE encoded bytes.
func EncodeUTF16(s string) []byte {
	buf := new(bytes.Buffer)

	for _, ch := range utf16.Encode([]rune(s)) {
		_ = binary.Write(buf, binary.LittleEndian, ch)
	}

	return buf.Bytes()
}

// DecodeUTF16 converts UTF-16LE code units back to a string, dropping
// a trailing NUL terminator if present.
func DecodeUTF16(units []uint16) string {
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// WrapSecurityFlag wraps data with an RDP security header containing the specified flag.
func WrapSecurityFlag(flag uint16, data []byte) []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, flag)
	buf.Write([]byte{0x00, 0x00}) // flagsHi

	buf.Write(data)

	return buf.Bytes()
}

// UnwrapSecurityFlag reads an RDP basic security header and returns
// its flags field (flagsHi is discarded; it is always zero on modern
// servers).
func UnwrapSecurityFlag(wire io.Reader) (uint16, error) {
	var flag, flagsHi uint16

	if err := binary.Read(wire, binary.LittleEndian, &flag); err != nil {
		return 0, err
	}
	if err := binary.Read(wire, binary.LittleEndian, &flagsHi); err != nil {
		return 0, err
	}

	return flag, nil
}
