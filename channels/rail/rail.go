// Package rail carries the MS-RDPERP (RemoteApp) handshake over the
// "rail" static virtual channel. Window-management orders are not
// decoded, and the Handler does not pass them on; this core draws no
// local windows.
package rail

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vantage-sec/rdpcore/pdu"
)

// ChannelName is the static virtual channel RAIL traffic flows over.
const ChannelName = "rail"

// Order identifies a RAIL PDU order type (MS-RDPERP 2.2.2.1.1).
type Order uint16

const (
	// OrderExec TS_RAIL_ORDER_EXEC
	OrderExec Order = 0x0001

	// OrderActivate TS_RAIL_ORDER_ACTIVATE
	OrderActivate Order = 0x0002

	// OrderSysParam TS_RAIL_ORDER_SYSPARAM
	OrderSysParam Order = 0x0003

	// OrderSysCommand TS_RAIL_ORDER_SYSCOMMAND
	OrderSysCommand Order = 0x0004

	// OrderHandshake TS_RAIL_ORDER_HANDSHAKE
	OrderHandshake Order = 0x0005

	// OrderClientStatus TS_RAIL_ORDER_CLIENTSTATUS
	OrderClientStatus Order = 0x000B

	// OrderExecResult TS_RAIL_ORDER_EXEC_RESULT
	OrderExecResult Order = 0x0080

	// OrderHandshakeEx TS_RAIL_ORDER_HANDSHAKE_EX
	OrderHandshakeEx Order = 0x0013
)

// Header is the common TS_RAIL_PDU_HEADER: order type plus the total
// PDU length including the header itself.
type Header struct {
	OrderType   Order
	OrderLength uint16
}

const headerLen = 4

// ParseHeader splits a RAIL PDU into its header and body.
func ParseHeader(payload []byte) (Header, []byte, error) {
	if len(payload) < headerLen {
		return Header{}, nil, fmt.Errorf("rail: pdu shorter than header: %d bytes", len(payload))
	}
	h := Header{
		OrderType:   Order(binary.LittleEndian.Uint16(payload[0:2])),
		OrderLength: binary.LittleEndian.Uint16(payload[2:4]),
	}
	if int(h.OrderLength) > len(payload) {
		return Header{}, nil, fmt.Errorf("rail: declared length %d exceeds payload %d", h.OrderLength, len(payload))
	}
	return h, payload[headerLen:h.OrderLength], nil
}

func wrapOrder(orderType Order, body []byte) []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint16(orderType))
	_ = binary.Write(buf, binary.LittleEndian, uint16(headerLen+len(body))) // #nosec G115
	buf.Write(body)

	return buf.Bytes()
}

// BuildHandshake encodes TS_RAIL_ORDER_HANDSHAKE with this client's
// build number.
func BuildHandshake(buildNumber uint32) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, buildNumber)
	return wrapOrder(OrderHandshake, body)
}

// Client status flags (MS-RDPERP 2.2.2.2.2).
const (
	StatusAllowLocalMoveSize uint32 = 0x00000001
	StatusAutoReconnectLogon uint32 = 0x00000002
	StatusZOrderSync         uint32 = 0x00000004
)

// BuildClientStatus encodes TS_RAIL_ORDER_CLIENTSTATUS.
func BuildClientStatus(flags uint32) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, flags)
	return wrapOrder(OrderClientStatus, body)
}

// Exec flags (MS-RDPERP 2.2.2.3.1).
const (
	ExecExpandWorkingDirectory uint16 = 0x0001
	ExecTranslateFilesToArgs   uint16 = 0x0002
	ExecExpandArguments        uint16 = 0x0008
)

// BuildClientExecute encodes TS_RAIL_ORDER_EXEC launching app with
// workDir and args.
func BuildClientExecute(app, workDir, args string) []byte {
	exe := pdu.EncodeUTF16(app)
	dir := pdu.EncodeUTF16(workDir)
	arg := pdu.EncodeUTF16(args)

	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, ExecExpandWorkingDirectory|ExecExpandArguments)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(exe))) // #nosec G115
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(dir))) // #nosec G115
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(arg))) // #nosec G115
	buf.Write(exe)
	buf.Write(dir)
	buf.Write(arg)

	return wrapOrder(OrderExec, buf.Bytes())
}

// ExecResult is the server's TS_RAIL_ORDER_EXEC_RESULT.
type ExecResult struct {
	Flags      uint16
	ExecResult uint16
	RawResult  uint32
}

// Exec result codes (MS-RDPERP 2.2.2.3.2).
const (
	ExecResultOK             uint16 = 0x0000
	ExecResultHookNotLoaded  uint16 = 0x0001
	ExecResultDecodeFailed   uint16 = 0x0002
	ExecResultNotInAllowList uint16 = 0x0003
	ExecResultFileNotFound   uint16 = 0x0005
	ExecResultFailed         uint16 = 0x0006
	ExecResultSessionLocked  uint16 = 0x0007
)

// ParseExecResult decodes TS_RAIL_ORDER_EXEC_RESULT.
func ParseExecResult(body []byte) (ExecResult, error) {
	var r ExecResult
	wire := bytes.NewReader(body)

	if err := binary.Read(wire, binary.LittleEndian, &r.Flags); err != nil {
		return r, err
	}
	if err := binary.Read(wire, binary.LittleEndian, &r.ExecResult); err != nil {
		return r, err
	}
	var pad uint16
	if err := binary.Read(wire, binary.LittleEndian, &pad); err != nil {
		return r, err
	}
	if err := binary.Read(wire, binary.LittleEndian, &r.RawResult); err != nil && err != io.EOF {
		return r, err
	}
	return r, nil
}
