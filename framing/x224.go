package framing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// X.224 TPDU codes (ITU-T X.224 / MS-RDPBCGR 2.2.1).
const (
	tpduConnectionRequest = 0xE0
	tpduConnectionConfirm = 0xD0
	tpduDataMask          = 0xF0
)

var (
	ErrSmallConnectionConfirmLength = errors.New("framing: connection confirm TPDU has wrong length")
	ErrWrongConnectionConfirmCode   = errors.New("framing: wrong connection confirm TPDU code")
	ErrWrongDataLength              = errors.New("framing: wrong data TPDU length indicator")
)

// ConnectionRequest is the X.224 Connection Request TPDU the client
// sends to open the X.224 connection, carrying the RDP Negotiation
// Request as its UserData.
type ConnectionRequest struct {
	CRCDT       uint8
	DSTREF      uint16
	SRCREF      uint16
	ClassOption uint8

	VariablePart []byte
	UserData     []byte
}

// Serialize encodes the TPDU, including its own length-indicator byte.
func (r *ConnectionRequest) Serialize() []byte {
	body := new(bytes.Buffer)
	body.WriteByte(r.CRCDT)
	_ = binary.Write(body, binary.BigEndian, r.DSTREF)
	_ = binary.Write(body, binary.BigEndian, r.SRCREF)
	body.WriteByte(r.ClassOption)
	body.Write(r.VariablePart)

	li := body.Len()
	out := make([]byte, 0, 1+li+len(r.UserData))
	out = append(out, byte(li))
	out = append(out, body.Bytes()...)
	out = append(out, r.UserData...)
	return out
}

// ConnectionConfirm is the X.224 Connection Confirm TPDU the server
// returns, carrying the RDP Negotiation Response/Failure as UserData
// (the remainder of the containing TPKT payload after this header).
type ConnectionConfirm struct {
	LI          uint8
	CCCDT       uint8
	DSTREF      uint16
	SRCREF      uint16
	ClassOption uint8
}

// Deserialize reads the fixed 6-byte Connection Confirm header from
// wire. Negotiation response/failure bytes, if any, remain in wire
// for the caller to read separately.
func (c *ConnectionConfirm) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &c.LI); err != nil {
		return err
	}
	if c.LI < 6 || c.LI > 14 {
		return fmt.Errorf("%w: LI=%d", ErrSmallConnectionConfirmLength, c.LI)
	}
	if err := binary.Read(wire, binary.BigEndian, &c.CCCDT); err != nil {
		return err
	}
	if c.CCCDT != tpduConnectionConfirm {
		return fmt.Errorf("%w: 0x%02x", ErrWrongConnectionConfirmCode, c.CCCDT)
	}
	if err := binary.Read(wire, binary.BigEndian, &c.DSTREF); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.BigEndian, &c.SRCREF); err != nil {
		return err
	}
	return binary.Read(wire, binary.BigEndian, &c.ClassOption)
}

// Data is the X.224 Data TPDU wrapping every post-connection slow-path
// PDU (MCS Send Data Request/Indication and everything inside it).
type Data struct {
	LI       uint8
	DTROA    uint8
	NREOT    uint8
	UserData []byte
}

// Serialize encodes the TPDU.
func (d *Data) Serialize() []byte {
	out := make([]byte, 0, 3+len(d.UserData))
	out = append(out, d.LI, d.DTROA, d.NREOT)
	return append(out, d.UserData...)
}

// Deserialize reads a Data TPDU header from wire; the remaining bytes
// of wire belong to the caller (the MCS layer), matching how
// ConnectionConfirm leaves negotiation bytes for its caller.
func (d *Data) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &d.LI); err != nil {
		return err
	}
	if d.LI != 2 {
		return fmt.Errorf("%w: LI=%d", ErrWrongDataLength, d.LI)
	}
	if err := binary.Read(wire, binary.BigEndian, &d.DTROA); err != nil {
		return err
	}
	return binary.Read(wire, binary.BigEndian, &d.NREOT)
}

// ParseSlowPathPDU splits a TPKT-unwrapped slow-path payload into its
// X.224 header and the remaining application bytes, dispatching on
// the TPDU code in the first payload byte.
func ParseSlowPathPDU(payload []byte) (code uint8, body []byte, err error) {
	if len(payload) < 2 {
		return 0, nil, fmt.Errorf("framing: slow-path payload too short (%d bytes)", len(payload))
	}
	li := payload[0]
	if int(li)+1 > len(payload) {
		return 0, nil, fmt.Errorf("framing: slow-path LI=%d exceeds payload", li)
	}
	return payload[1], payload[int(li)+1:], nil
}
