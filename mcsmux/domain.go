// Package mcsmux is the Channel Multiplexer: it wraps and unwraps MCS
// Domain PDUs (T.125) carrying the connection-sequence control
// messages (Erect Domain, Attach User, Channel Join) and the
// per-channel Send Data traffic, and owns SVC fragment reassembly.
// Everything here is a pure encode/decode pair plus a Mux that owns
// reassembly state -- no io.Reader, no socket.
package mcsmux

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vantage-sec/rdpcore/asn1"
)

// Application is the MCSPDU choice discriminant (T.125 §7, values per
// MS-RDPBCGR's own MCS usage).
type Application uint8

const (
	AppPlumbDomainIndication        Application = 0
	AppErectDomainRequest           Application = 1
	AppMergeChannelsRequest         Application = 2
	AppMergeChannelsConfirm         Application = 3
	AppPurgeChannelsIndication      Application = 4
	AppMergeTokensRequest           Application = 5
	AppMergeTokensConfirm           Application = 6
	AppPurgeTokensIndication        Application = 7
	AppDisconnectProviderUltimatum  Application = 8
	AppRejectMCSPDUUltimatum        Application = 9
	AppAttachUserRequest            Application = 10
	AppAttachUserConfirm            Application = 11
	AppDetachUserRequest            Application = 12
	AppDetachUserIndication         Application = 13
	AppChannelJoinRequest           Application = 14
	AppChannelJoinConfirm           Application = 15
	AppChannelLeaveRequest          Application = 16
	AppChannelConveneRequest        Application = 17
	AppChannelConveneConfirm        Application = 18
	AppChannelDisbandRequest        Application = 19
	AppChannelDisbandIndication     Application = 20
	AppChannelAdmitRequest          Application = 21
	AppChannelAdmitIndication       Application = 22
	AppChannelExpelRequest          Application = 23
	AppChannelExpelIndication       Application = 24
	AppSendDataRequest              Application = 25
	AppSendDataIndication           Application = 26
	AppUniformSendDataRequest       Application = 27
	AppUniformSendDataIndication    Application = 28
)

// header byte packs the MCSPDU choice into the high 6 bits (T.125's
// PER choice-index encoding for this CHOICE type) with the low 2 bits
// reserved (always 0 here -- none of the messages this core emits or
// consumes use the optional extension bit).
func writeHeader(buf *bytes.Buffer, app Application) {
	buf.WriteByte(byte(app) << 2)
}

func readHeader(r io.Reader) (Application, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Application(b[0] >> 2), nil
}

// ErrUnexpectedApplication is returned when a DecodeDomainPDU caller
// expected one Application and got another.
type ErrUnexpectedApplication struct {
	Got, Want Application
}

func (e *ErrUnexpectedApplication) Error() string {
	return fmt.Sprintf("mcsmux: expected MCSPDU application %d, got %d", e.Want, e.Got)
}

// EncodeErectDomainRequest builds the client's Erect-Domain-Request
// (T.125 §9, sub-height/sub-interval both 0, matching every RDP client).
func EncodeErectDomainRequest() []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, AppErectDomainRequest)
	asn1.PerWriteInteger(0, buf)
	asn1.PerWriteInteger(0, buf)
	return buf.Bytes()
}

// EncodeAttachUserRequest builds the client's Attach-User-Request.
func EncodeAttachUserRequest() []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, AppAttachUserRequest)
	return buf.Bytes()
}

// DecodeAttachUserConfirm parses the server's Attach-User-Confirm,
// returning the assigned user id.
func DecodeAttachUserConfirm(data []byte) (userID uint16, err error) {
	r := bytes.NewReader(data)
	app, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	if app != AppAttachUserConfirm {
		return 0, &ErrUnexpectedApplication{Got: app, Want: AppAttachUserConfirm}
	}
	result, err := asn1.PerReadEnumerates(r)
	if err != nil {
		return 0, err
	}
	if result != 0 {
		return 0, fmt.Errorf("mcsmux: attach user rejected, result=%d", result)
	}
	userID, err = asn1.PerReadInteger16(1001, r)
	return userID, err
}

// EncodeChannelJoinRequest builds a Channel-Join-Request for channelID
// on behalf of userID.
func EncodeChannelJoinRequest(userID, channelID uint16) []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, AppChannelJoinRequest)
	asn1.PerWriteInteger16(userID, 1001, buf)
	asn1.PerWriteInteger16(channelID, 0, buf)
	return buf.Bytes()
}

// DecodeChannelJoinConfirm parses the server's Channel-Join-Confirm.
func DecodeChannelJoinConfirm(data []byte) (channelID uint16, err error) {
	r := bytes.NewReader(data)
	app, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	if app != AppChannelJoinConfirm {
		return 0, &ErrUnexpectedApplication{Got: app, Want: AppChannelJoinConfirm}
	}
	result, err := asn1.PerReadEnumerates(r)
	if err != nil {
		return 0, err
	}
	if result != 0 {
		return 0, fmt.Errorf("mcsmux: channel join rejected, result=%d", result)
	}
	if _, err = asn1.PerReadInteger16(1001, r); err != nil { // initiator, ignored
		return 0, err
	}
	if _, err = asn1.PerReadInteger16(0, r); err != nil { // requested channel id, ignored
		return 0, err
	}
	return asn1.PerReadInteger16(0, r)
}

// EncodeSendDataRequest wraps payload as a client Send-Data-Request on
// channelID, on behalf of userID.
func EncodeSendDataRequest(userID, channelID uint16, payload []byte) []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, AppSendDataRequest)
	asn1.PerWriteInteger16(userID, 1001, buf)
	asn1.PerWriteInteger16(channelID, 0, buf)
	buf.WriteByte(0x70) // data-priority/segmentation octet, RDP clients always send this fixed value
	asn1.BerWriteLength(len(payload), buf)
	buf.Write(payload)
	return buf.Bytes()
}

// DecodedSendData is a parsed Send-Data-Indication/-Request: the
// channel it targets and its payload (still opaque bytes -- the
// caller, typically Mux.Inbound, interprets it per channel).
type DecodedSendData struct {
	Initiator uint16
	ChannelID uint16
	Payload   []byte
}

// DecodeSendData parses either a Send-Data-Indication (the direction a
// client receives) or a Send-Data-Request, since both share a layout.
func DecodeSendData(data []byte) (*DecodedSendData, error) {
	r := bytes.NewReader(data)
	app, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if app != AppSendDataIndication && app != AppSendDataRequest {
		return nil, &ErrUnexpectedApplication{Got: app, Want: AppSendDataIndication}
	}

	initiator, err := asn1.PerReadInteger16(1001, r)
	if err != nil {
		return nil, err
	}
	channelID, err := asn1.PerReadInteger16(0, r)
	if err != nil {
		return nil, err
	}
	if _, err = r.ReadByte(); err != nil { // priority/segmentation octet
		return nil, err
	}
	length, err := asn1.BerReadLength(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &DecodedSendData{Initiator: initiator, ChannelID: channelID, Payload: payload}, nil
}

// IsDisconnectUltimatum reports whether data is a
// Disconnect-Provider-Ultimatum, the MCS-level "server hung up" signal.
func IsDisconnectUltimatum(data []byte) bool {
	app, err := readHeader(bytes.NewReader(data))
	return err == nil && app == AppDisconnectProviderUltimatum
}
