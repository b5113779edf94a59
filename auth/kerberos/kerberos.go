// Package kerberos produces the Kerberos leg of a CredSSP exchange:
// an SPNEGO-wrapped AP-REQ for the target host's TERMSRV service and a
// GSS-API sealing context derived from the ticket session key. It is
// caller-side glue, not part of the sans-I/O core: the Connector asks
// for a token via its NeedCredsspToken event and this package answers
// it, talking to the KDC over the network.
//
// MS-KKDCP proxying is not supported by the underlying library; when a
// KDC proxy URL is configured, its host is dialed as a plain KDC
// endpoint.
package kerberos

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/jcmturner/gokrb5/v8/types"
)

// Provider obtains service tickets and seals CredSSP payloads.
type Provider struct {
	username string
	password string
	realm    string
	kdc      string

	cl         *client.Client
	sessionKey types.EncryptionKey
	seqNum     uint64
}

// New builds a Provider for user@realm authenticating against the KDC
// reachable at kdcProxyURL (host:port or an https KKDCP URL whose host
// is used directly, see package comment).
func New(username, password, realm, kdcProxyURL string) (*Provider, error) {
	if realm == "" {
		return nil, fmt.Errorf("kerberos: realm required")
	}

	kdc, err := kdcAddress(realm, kdcProxyURL)
	if err != nil {
		return nil, err
	}

	realm = strings.ToUpper(realm)

	krbConf := fmt.Sprintf(`[libdefaults]
 default_realm = %s
 dns_lookup_kdc = false

[realms]
 %s = {
  kdc = %s
 }
`, realm, realm, kdc)

	conf, err := config.NewFromString(krbConf)
	if err != nil {
		return nil, fmt.Errorf("kerberos: config: %w", err)
	}

	return &Provider{
		username: username,
		password: password,
		realm:    realm,
		kdc:      kdc,
		cl:       client.NewWithPassword(username, realm, password, conf, client.DisablePAFXFAST(true)),
	}, nil
}

// InitialToken logs in, fetches a TERMSRV/<host> service ticket and
// returns the SPNEGO KRB5 AP-REQ token to place in the first CredSSP
// negoToken. The ticket session key is retained for sealing.
func (p *Provider) InitialToken(targetHost string) ([]byte, error) {
	if err := p.cl.Login(); err != nil {
		return nil, fmt.Errorf("kerberos: login: %w", err)
	}

	spn := "TERMSRV/" + targetHost
	tkt, key, err := p.cl.GetServiceTicket(spn)
	if err != nil {
		return nil, fmt.Errorf("kerberos: service ticket %s: %w", spn, err)
	}
	p.sessionKey = key

	tok, err := spnego.NewKRB5TokenAPREQ(p.cl, tkt, key,
		[]int{gssapi.ContextFlagInteg, gssapi.ContextFlagConf, gssapi.ContextFlagMutual}, nil)
	if err != nil {
		return nil, fmt.Errorf("kerberos: ap-req: %w", err)
	}

	return tok.Marshal()
}

// GssEncrypt seals data into an RFC 4121 wrap token using the ticket
// session key, as CredSSP's pubKeyAuth/authInfo fields require.
func (p *Provider) GssEncrypt(data []byte) []byte {
	out, err := sealWrapToken(p.sessionKey, data, p.seqNum)
	if err != nil {
		return nil
	}
	p.seqNum++
	return out
}

// GssDecrypt unseals an RFC 4121 wrap token produced by the server.
func (p *Provider) GssDecrypt(data []byte) []byte {
	out, err := unsealWrapToken(p.sessionKey, data)
	if err != nil {
		return nil
	}
	return out
}

func kdcAddress(realm, kdcProxyURL string) (string, error) {
	if kdcProxyURL == "" {
		return strings.ToLower(realm) + ":88", nil
	}
	if strings.Contains(kdcProxyURL, "://") {
		u, err := url.Parse(kdcProxyURL)
		if err != nil {
			return "", fmt.Errorf("kerberos: kdc proxy url: %w", err)
		}
		host := u.Hostname()
		port := u.Port()
		if port == "" {
			port = "88"
		}
		return host + ":" + port, nil
	}
	if strings.Contains(kdcProxyURL, ":") {
		return kdcProxyURL, nil
	}
	return kdcProxyURL + ":88", nil
}

// RFC 4121 §4.2.6.2 wrap token with confidentiality. TOK_ID 0x0504,
// flags sealed|sent-by-initiator, EC and RRC zero on encode.
const (
	wrapTokenHeaderLen = 16

	wrapFlagSentByAcceptor = 0x01
	wrapFlagSealed         = 0x02

	// RFC 4121 §2 GSS-API key usage numbers.
	keyUsageAcceptorSeal  uint32 = 22
	keyUsageInitiatorSeal uint32 = 24
)

func sealWrapToken(key types.EncryptionKey, data []byte, seqNum uint64) ([]byte, error) {
	etype, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return nil, err
	}

	header := make([]byte, wrapTokenHeaderLen)
	header[0] = 0x05
	header[1] = 0x04
	header[2] = wrapFlagSealed
	header[3] = 0xFF
	// EC and RRC stay zero
	binary.BigEndian.PutUint64(header[8:], seqNum)

	// The plaintext carries a copy of the token header so the peer can
	// verify it was not stripped or altered.
	plain := make([]byte, 0, len(data)+wrapTokenHeaderLen)
	plain = append(plain, data...)
	plain = append(plain, header...)

	_, ct, err := etype.EncryptMessage(key.KeyValue, plain, keyUsageInitiatorSeal)
	if err != nil {
		return nil, err
	}

	return append(header, ct...), nil
}

func unsealWrapToken(key types.EncryptionKey, token []byte) ([]byte, error) {
	if len(token) < wrapTokenHeaderLen {
		return nil, fmt.Errorf("kerberos: wrap token too short: %d bytes", len(token))
	}
	if token[0] != 0x05 || token[1] != 0x04 {
		return nil, fmt.Errorf("kerberos: bad wrap token id %s", hex.EncodeToString(token[:2]))
	}

	etype, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return nil, err
	}

	usage := keyUsageAcceptorSeal
	if token[2]&wrapFlagSentByAcceptor == 0 {
		usage = keyUsageInitiatorSeal
	}

	plain, err := etype.DecryptMessage(key.KeyValue, token[wrapTokenHeaderLen:], usage)
	if err != nil {
		return nil, err
	}

	if len(plain) < wrapTokenHeaderLen {
		return nil, fmt.Errorf("kerberos: sealed payload too short")
	}
	// Strip the trailing header copy.
	return plain[:len(plain)-wrapTokenHeaderLen], nil
}
