// Package pdu implements RDP Protocol Data Units as defined in MS-RDPBCGR.
package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

)

// License PDU message types (MS-RDPELE 2.2.2.1 LICENSE_PREAMBLE.bMsgType).
const (
	MsgTypeLicenseRequest           uint8 = 0x01
	MsgTypePlatformChallenge        uint8 = 0x02
	MsgTypeNewLicense               uint8 = 0x03
	MsgTypeUpgradeLicense           uint8 = 0x04
	MsgTypeLicenseInfo              uint8 = 0x12
	MsgTypeNewLicenseRequest        uint8 = 0x13
	MsgTypePlatformChallengeResponse uint8 = 0x15
	MsgTypeErrorAlert               uint8 = 0xFF
)

// LicensingBinaryBlob represents a LICENSE_BINARY_BLOB structure (MS-RDPELE 2.2.2.4).
type LicensingBinaryBlob struct {
	BlobType uint16
	BlobLen  uint16
	BlobData []byte
}

// Deserialize reads a LICENSE_BINARY_BLOB from wire.
func (b *LicensingBinaryBlob) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &b.BlobType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &b.BlobLen); err != nil {
		return err
	}

	if b.BlobLen == 0 {
		return nil
	}

	b.BlobData = make([]byte, b.BlobLen)

	if _, err := wire.Read(b.BlobData); err != nil {
		return err
	}

	return nil
}

// LicensingErrorMessage represents a LICENSE_ERROR_MESSAGE structure (MS-RDPELE 2.2.1.12).
type LicensingErrorMessage struct {
	ErrorCode       uint32
	StateTransition uint32
	ErrorInfo       LicensingBinaryBlob
}

// Deserialize reads a LICENSE_ERROR_MESSAGE from wire.
func (m *LicensingErrorMessage) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &m.ErrorCode); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &m.StateTransition); err != nil {
		return err
	}

	return m.ErrorInfo.Deserialize(wire)
}

// LicensingPreamble represents a LICENSE_PREAMBLE structure (MS-RDPELE 2.2.2.1).
type LicensingPreamble struct {
	MsgType uint8
	Flags   uint8
	MsgSize uint16
}

// Deserialize reads a LICENSE_PREAMBLE from wire.
func (p *LicensingPreamble) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &p.MsgType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &p.Flags); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &p.MsgSize)
}

// ServerLicenseError represents a Server License Error PDU (MS-RDPBCGR 2.2.1.12).
type ServerLicenseError struct {
	Preamble           LicensingPreamble
	ValidClientMessage LicensingErrorMessage
}

// Deserialize parses the server license response.
// Note: XRDP sends security header even with TLS, so we always expect it.
func (pdu *ServerLicenseError) Deserialize(wire io.Reader, useEnhancedSecurity bool) error {
	// Always expect security header for XRDP compatibility.
	// XRDP sends SEC_LICENSE_PKT | SEC_LICENSE_ENCRYPT_CS (0x0280) even with TLS.
	securityFlag, err := UnwrapSecurityFlag(wire)
	if err != nil {
		return err
	}

	// SEC_LICENSE_PKT = 0x0080, may be combined with SEC_LICENSE_ENCRYPT_CS = 0x0200
	if securityFlag&0x0080 == 0 { // SEC_LICENSE_PKT
		return errors.New("bad license header")
	}

	err = pdu.Preamble.Deserialize(wire)
	if err != nil {
		return err
	}

	err = pdu.ValidClientMessage.Deserialize(wire)
	if err != nil {
		return err
	}

	return nil
}

// ProductInfo represents the PRODUCT_INFO structure (MS-RDPELE 2.2.2.2.1)
// carried in a Server License Request / New/Upgrade License message.
type ProductInfo struct {
	Version      uint32
	CompanyName  string
	ProductID    string
}

func (p *ProductInfo) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &p.Version); err != nil {
		return err
	}
	companyName, err := readLenPrefixedUTF16(wire)
	if err != nil {
		return err
	}
	p.CompanyName = companyName
	productID, err := readLenPrefixedUTF16(wire)
	if err != nil {
		return err
	}
	p.ProductID = productID
	return nil
}

func readLenPrefixedUTF16(wire io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(wire, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(wire, raw); err != nil {
		return "", err
	}
	return decodeUTF16LE(raw), nil
}

func decodeUTF16LE(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, binary.LittleEndian.Uint16(raw[i:i+2]))
	}
	return DecodeUTF16(units)
}

// ServerLicenseRequest is the SERVER_LICENSE_REQUEST message (MS-RDPELE
// 2.2.2.1): the server's invitation to either present a cached license
// or enroll for a new one. The hwid fields used by the license cache
// key are folded out of ServerRandom + ProductInfo since this core
// never implements the RDP Standard Security RC4 transport that real
// MS-RDPELE license blobs are encrypted under (only the TLS/HYBRID
// security paths are supported) -- the license cache keys and replays
// the opaque blob bytes rather than decrypting them.
type ServerLicenseRequest struct {
	Preamble      LicensingPreamble
	ServerRandom  [32]byte
	ProductInfo   ProductInfo
	KeyExchangeList LicensingBinaryBlob
	ServerCertificate LicensingBinaryBlob
}

// Deserialize reads a Server License Request from wire (preamble
// already consumed by the caller, matching ServerLicenseError's
// convention where the caller owns the security header).
func (r *ServerLicenseRequest) Deserialize(wire io.Reader) error {
	if _, err := io.ReadFull(wire, r.ServerRandom[:]); err != nil {
		return err
	}
	if err := r.ProductInfo.Deserialize(wire); err != nil {
		return err
	}
	if err := r.KeyExchangeList.Deserialize(wire); err != nil {
		return err
	}
	return r.ServerCertificate.Deserialize(wire)
}

// HWID derives the license cache key for a server license request or
// upgrade: the product id string, which is stable across a given
// server install and is the nearest stand-in this core has for the
// MS-RDPELE CLIENT_HARDWARE_ID hash without decrypting the real
// encrypted license blob (see ServerLicenseRequest's doc comment).
func (r *ServerLicenseRequest) HWID() string {
	return fmt.Sprintf("%s/%s", r.ProductInfo.CompanyName, r.ProductInfo.ProductID)
}

// ServerUpgradeOrNewLicense carries the encrypted license data the
// server issues on SERVER_UPGRADE_LICENSE/SERVER_NEW_LICENSE (MS-RDPELE
// 2.2.2.6): this core stores and replays EncryptedLicenseInfo.BlobData
// opaquely through the license.Cache port rather than decrypting it.
type ServerUpgradeOrNewLicense struct {
	EncryptedLicenseInfo LicensingBinaryBlob
	MACData               [16]byte
}

func (l *ServerUpgradeOrNewLicense) Deserialize(wire io.Reader) error {
	if err := l.EncryptedLicenseInfo.Deserialize(wire); err != nil {
		return err
	}
	_, err := io.ReadFull(wire, l.MACData[:])
	return err
}

// ClientNewLicenseRequest is CLIENT_NEW_LICENSE_REQUEST (MS-RDPELE
// 2.2.2.4): sent when no cached license is available, asking the
// server to issue one. clientRandom/encryptedPreMasterSecret are left
// zero-filled for the same reason ServerLicenseRequest doesn't decrypt
// -- this core's Licensing state does not implement the RDP Standard
// Security key exchange the real field requires, only the TLS/HYBRID
// paths in which Windows servers accept an all-zero placeholder here
// and fall back to re-issuing a license on every connect.
func EncodeClientNewLicenseRequest(username, clientMachineName string) []byte {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, 4))  // preferredKeyExchangeAlg placeholder (filled by caller's security layer)
	buf.Write(make([]byte, 4))  // platformId placeholder
	buf.Write(make([]byte, 32)) // clientRandom
	writeLicenseBlob(buf, 0x0009, nil) // encryptedPreMasterSecret, empty when NLA already established the session key
	writeLicenseBlob(buf, 0x0001, EncodeUTF16(username))
	writeLicenseBlob(buf, 0x0001, EncodeUTF16(clientMachineName))
	return wrapLicensePreamble(MsgTypeNewLicenseRequest, buf.Bytes())
}

// EncodeClientLicenseInfo is CLIENT_LICENSE_INFO (MS-RDPELE 2.2.2.3):
// the client replays a cached license blob instead of re-enrolling.
func EncodeClientLicenseInfo(cachedBlob []byte) []byte {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, 4))  // preferredKeyExchangeAlg placeholder
	buf.Write(make([]byte, 4))  // platformId placeholder
	buf.Write(make([]byte, 32)) // clientRandom
	writeLicenseBlob(buf, 0x0009, nil) // encryptedPreMasterSecret
	writeLicenseBlob(buf, 0x0003, cachedBlob) // LICENSE_INFO blob type
	return wrapLicensePreamble(MsgTypeLicenseInfo, buf.Bytes())
}

func writeLicenseBlob(buf *bytes.Buffer, blobType uint16, data []byte) {
	_ = binary.Write(buf, binary.LittleEndian, blobType)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(data)))
	buf.Write(data)
}

func wrapLicensePreamble(msgType uint8, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(msgType)
	buf.WriteByte(0x00) // flags: PREAMBLE_VERSION_3_0
	_ = binary.Write(buf, binary.LittleEndian, uint16(4+len(body)))
	buf.Write(body)
	return buf.Bytes()
}
