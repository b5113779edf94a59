package main

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	itls "github.com/icodeface/tls"

	"github.com/vantage-sec/rdpcore/active"
	"github.com/vantage-sec/rdpcore/auth/kerberos"
	"github.com/vantage-sec/rdpcore/connector"
	"github.com/vantage-sec/rdpcore/graphics"
	"github.com/vantage-sec/rdpcore/license"
	"github.com/vantage-sec/rdpcore/rdpconfig"
	"github.com/vantage-sec/rdpcore/rlog"
)

type gateway struct {
	config    *rdpconfig.Config
	log       *rlog.Logger
	metrics   *gatewayMetrics
	legacyTLS bool

	licenses license.Cache
	upgrader websocket.Upgrader
}

func newGateway(config *rdpconfig.Config, log *rlog.Logger, legacyTLS bool) *gateway {
	gw := &gateway{
		config:    config,
		log:       log,
		metrics:   newGatewayMetrics(nil),
		legacyTLS: legacyTLS,
		licenses:  license.NewMemCache(),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.RDP.BufferSize,
		WriteBufferSize: config.RDP.BufferSize,
		CheckOrigin:     gw.checkOrigin,
	}
	return gw
}

func (gw *gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(gw.config.Security.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range gw.config.Security.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// credentialsMessage is the first WebSocket message a browser sends.
type credentialsMessage struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
}

// inputMessage is every subsequent text message: one UI event.
type inputMessage struct {
	Type     string `json:"type"` // key, unicode, move, button, wheel, sync, resize, suppress, shutdown
	Code     uint16 `json:"code"`
	Down     bool   `json:"down"`
	Extended bool   `json:"extended"`
	X        uint16 `json:"x"`
	Y        uint16 `json:"y"`
	Button   int    `json:"button"`
	Delta    int16  `json:"delta"`
	Caps     bool   `json:"caps"`
	Num      bool   `json:"num"`
	Scroll   bool   `json:"scroll"`
	Width    uint16 `json:"width"`
	Height   uint16 `json:"height"`
	Allow    bool   `json:"allow"`
}

func (gw *gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	ws, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.log.Warn("websocket upgrade: %v", err)
		return
	}
	defer ws.Close()

	width, height := gw.geometry(r)

	_ = ws.SetReadDeadline(time.Now().Add(30 * time.Second))
	var creds credentialsMessage
	if err := ws.ReadJSON(&creds); err != nil {
		gw.log.Warn("credentials message: %v", err)
		return
	}
	_ = ws.SetReadDeadline(time.Time{})
	if creds.Host == "" || creds.User == "" {
		_ = ws.WriteJSON(map[string]string{"error": "host and user are required"})
		return
	}

	log := gw.log.With("target", creds.Host)
	gw.metrics.sessionStarted()
	result := "transport_error"
	defer func() { gw.metrics.sessionEnded(result) }()

	if err := gw.runSession(ws, creds, width, height, log); err != nil {
		var outcome *sessionOutcome
		if errors.As(err, &outcome) {
			result = outcome.result
		}
		log.Warn("session ended: %v", err)
		_ = ws.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	result = "connected"
}

func (gw *gateway) geometry(r *http.Request) (uint16, uint16) {
	width := gw.config.RDP.DefaultWidth
	height := gw.config.RDP.DefaultHeight
	if v, err := strconv.Atoi(r.URL.Query().Get("width")); err == nil && v > 0 && v <= gw.config.RDP.MaxWidth {
		width = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("height")); err == nil && v > 0 && v <= gw.config.RDP.MaxHeight {
		height = v
	}
	return uint16(width), uint16(height) // #nosec G115
}

// sessionOutcome wraps an error with the metrics label its class maps to.
type sessionOutcome struct {
	result string
	err    error
}

func (o *sessionOutcome) Error() string { return o.err.Error() }
func (o *sessionOutcome) Unwrap() error { return o.err }

func (gw *gateway) connectorConfig(creds credentialsMessage, width, height uint16, localAddr string) *connector.Config {
	client := gw.config.Client
	cfg := &connector.Config{
		Credentials: connector.Credentials{
			Username: creds.User,
			Password: creds.Password,
			Domain:   creds.Domain,
		},
		ClientName:      client.ClientName,
		Build:           0x1DB0,
		KeyboardLayout:  0x0409,
		SecurityFloor:   connector.ProtocolSSL,
		SecurityCeiling: connector.ProtocolHybrid,
		DesktopWidth:    width,
		DesktopHeight:   height,
		ColorDepth:      client.ColorDepth,
		Codecs:          client.Codecs,
		SVCChannels:     client.Channels,

		Compression:      client.Compression,
		CompressionLevel: client.CompressionLevel,

		EnableServerPointer:     client.EnableServerPointer,
		EnableAudioPlayback:     client.EnableAudioPlayback,
		EnableClipboard:         client.EnableClipboard,
		EnableDeviceRedirection: client.EnableDeviceRedir,

		PreConnectionBlob: client.PreConnectionBlob,
		Timezone:          client.Timezone,
		AlternateShell:    client.AlternateShell,
		WorkDir:           client.WorkDir,
		Autologon:         client.Autologon,
		KdcProxyURL:       client.KdcProxyURL,
		LocalAddress:      localAddr,
	}
	if !gw.config.Security.UseNLA {
		cfg.SecurityCeiling = connector.ProtocolSSL
	}
	if client.Multitransport {
		cfg.MultitransportFlags = 0x0301 // TRANSPORTTYPE_UDPFECR | UDPFECL | UDP_PREFERRED
	}
	return cfg
}

func (gw *gateway) runSession(ws *websocket.Conn, creds credentialsMessage, width, height uint16, log *rlog.Logger) error {
	target := creds.Host
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "3389")
	}

	conn, err := net.DialTimeout("tcp", target, gw.config.RDP.Timeout)
	if err != nil {
		return &sessionOutcome{result: "transport_error", err: err}
	}
	defer conn.Close()

	cfg := gw.connectorConfig(creds, width, height, conn.LocalAddr().String())
	c := connector.New(cfg, gw.licenses)

	session, conn, err := gw.runHandshake(c, conn, creds, log)
	if err != nil {
		return err
	}
	log.Info("connected: %dx%d, %d channels", session.DesktopWidth, session.DesktopHeight, len(session.SVCChannels))

	return gw.runActive(ws, conn, session, log)
}

// runHandshake pumps the Connector until EventConnected, performing
// the transport upgrades it requests. It returns the possibly-upgraded
// connection the Active phase continues on.
func (gw *gateway) runHandshake(c *connector.Connector, conn net.Conn, creds credentialsMessage, log *rlog.Logger) (*connector.SessionState, net.Conn, error) {
	buf := make([]byte, gw.config.RDP.BufferSize)

	out, events, err := c.Step(nil)
	for {
		if werr := writeAll(conn, out); werr != nil {
			return nil, conn, &sessionOutcome{result: "transport_error", err: werr}
		}
		gw.metrics.pumped("to_server", len(out))

		// Events may enqueue more events (a TLS upgrade resumed
		// mid-drain produces its own), so drain by index.
		for i := 0; i < len(events); i++ {
			switch ev := events[i]; ev.Kind {
			case connector.EventNeedTLSUpgrade:
				tlsConn, pubKey, terr := gw.upgradeTLS(conn, ev.ServerName)
				if terr != nil {
					return nil, conn, &sessionOutcome{result: "transport_error", err: terr}
				}
				conn = tlsConn
				var more []connector.Event
				out, more, err = c.ResumeAfterTLSUpgrade(pubKey)
				events = append(events, more...)
				if werr := writeAll(conn, out); werr != nil {
					return nil, conn, &sessionOutcome{result: "transport_error", err: werr}
				}

			case connector.EventNeedCredsspToken:
				provider, kerr := kerberos.New(creds.User, creds.Password, creds.Domain, gw.config.Client.KdcProxyURL)
				if kerr != nil {
					return nil, conn, &sessionOutcome{result: "credential_failed", err: kerr}
				}
				token, kerr := provider.InitialToken(serverHostname(creds.Host))
				if kerr != nil {
					return nil, conn, &sessionOutcome{result: "credential_failed", err: kerr}
				}
				var more []connector.Event
				out, more, err = c.SupplyCredsspToken(token, provider)
				events = append(events, more...)
				if werr := writeAll(conn, out); werr != nil {
					return nil, conn, &sessionOutcome{result: "transport_error", err: werr}
				}

			case connector.EventConnected:
				return ev.Session, conn, nil

			case connector.EventWarning:
				log.Warn("handshake: %s", ev.Message)
			}
			if err != nil {
				return nil, conn, classifyHandshakeError(err)
			}
		}
		if err != nil {
			return nil, conn, classifyHandshakeError(err)
		}

		n, rerr := conn.Read(buf)
		if rerr != nil {
			return nil, conn, &sessionOutcome{result: "transport_error", err: rerr}
		}
		out, events, err = c.Step(buf[:n])
	}
}

func classifyHandshakeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "credential") || strings.Contains(msg, "credssp") {
		return &sessionOutcome{result: "credential_failed", err: err}
	}
	return &sessionOutcome{result: "negotiation_failed", err: err}
}

// upgradeTLS wraps conn per the Connector's NeedTlsUpgrade event and
// returns the SubjectPublicKey material CredSSP binds against. The
// legacy stack is only used when the operator opted in, for servers
// still limited to cipher suites the standard library dropped.
func (gw *gateway) upgradeTLS(conn net.Conn, serverName string) (net.Conn, []byte, error) {
	if gw.config.Security.TLSServerName != "" {
		serverName = gw.config.Security.TLSServerName
	}
	if serverName == "" {
		serverName = "rdp-server"
	}

	if gw.legacyTLS {
		tlsConn := itls.Client(conn, &itls.Config{
			InsecureSkipVerify: true, // #nosec G402 -- the legacy stack exists only for servers that fail modern verification
			ServerName:         serverName,
		})
		if err := tlsConn.Handshake(); err != nil {
			return nil, nil, fmt.Errorf("legacy tls handshake: %w", err)
		}
		certs := tlsConn.ConnectionState().PeerCertificates
		if len(certs) == 0 {
			return nil, nil, fmt.Errorf("legacy tls: no peer certificate")
		}
		pubKey, err := subjectPublicKey(certs[0].RawSubjectPublicKeyInfo)
		if err != nil {
			return nil, nil, err
		}
		return tlsConn, pubKey, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		InsecureSkipVerify: gw.config.Security.SkipTLSValidation, // #nosec G402 -- operator-controlled, defaults to verification
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS10, // RDP servers on older Windows still negotiate 1.0
	})
	if err := tlsConn.Handshake(); err != nil {
		return nil, nil, fmt.Errorf("tls handshake: %w", err)
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("tls: no peer certificate")
	}
	pubKey, err := subjectPublicKey(certs[0].RawSubjectPublicKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	return tlsConn, pubKey, nil
}

func serverHostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func writeAll(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// runActive pumps the Active Stage: server bytes in one goroutine,
// browser input on the WebSocket read loop, decoded frames back out.
func (gw *gateway) runActive(ws *websocket.Conn, conn net.Conn, session *connector.SessionState, log *rlog.Logger) error {
	img := graphics.NewImage(int(session.DesktopWidth), int(session.DesktopHeight))
	p := active.NewProcessor(session, img)
	if gw.config.Client.EnableClipboard {
		p.EnableClipboard(nil)
	}
	if gw.config.Client.EnableAudioPlayback {
		p.EnableAudioPlayback(nil)
	}
	if gw.config.Client.EnableDeviceRedir {
		p.EnableDeviceRedirection(gw.config.Client.ClientName, nil)
	}

	errs := make(chan error, 2)

	// The Processor is single-threaded by contract; both pump
	// goroutines serialize through mu.
	var mu sync.Mutex

	// Server -> browser.
	go func() {
		buf := make([]byte, gw.config.RDP.BufferSize)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errs <- err
				return
			}
			gw.metrics.pumped("to_client", n)

			mu.Lock()
			out, events, perr := p.Process(buf[:n])
			mu.Unlock()
			if werr := writeAll(conn, out); werr != nil {
				errs <- werr
				return
			}
			for _, ev := range events {
				if err := gw.forwardEvent(ws, p, ev, log); err != nil {
					errs <- err
					return
				}
			}
			if perr != nil {
				errs <- perr
				return
			}
		}
	}()

	// Browser -> server.
	go func() {
		for {
			var msg inputMessage
			if err := ws.ReadJSON(&msg); err != nil {
				errs <- err
				return
			}
			commands := translateInput(msg)
			if len(commands) == 0 {
				continue
			}
			mu.Lock()
			out, err := p.EncodeInput(commands)
			mu.Unlock()
			if err != nil {
				log.Warn("input: %v", err)
				continue
			}
			if err := writeAll(conn, out); err != nil {
				errs <- err
				return
			}
			gw.metrics.pumped("to_server", len(out))
		}
	}()

	err := <-errs
	p.Terminate("transport closed")
	if err == io.EOF {
		return nil
	}
	return err
}

// Frame message layout to the browser: kind byte, then per kind.
const (
	frameKindRegion  = 0x01 // x,y,w,h u16 LE + RGBA pixels
	frameKindPointer = 0x02 // hotspot x,y u16 + w,h u16 + RGBA
	frameKindResize  = 0x03 // w,h u16
)

func (gw *gateway) forwardEvent(ws *websocket.Conn, p *active.Processor, ev active.Event, log *rlog.Logger) error {
	switch ev.Kind {
	case active.EventGraphicsUpdate:
		return ws.WriteMessage(websocket.BinaryMessage, encodeRegion(p.Image(), ev.Rect))

	case active.EventPointerSet:
		msg := make([]byte, 9, 9+len(ev.Cursor.RGBA))
		msg[0] = frameKindPointer
		binary.LittleEndian.PutUint16(msg[1:], uint16(ev.Cursor.HotSpotX)) // #nosec G115
		binary.LittleEndian.PutUint16(msg[3:], uint16(ev.Cursor.HotSpotY)) // #nosec G115
		binary.LittleEndian.PutUint16(msg[5:], uint16(ev.Cursor.Width))    // #nosec G115
		binary.LittleEndian.PutUint16(msg[7:], uint16(ev.Cursor.Height))   // #nosec G115
		return ws.WriteMessage(websocket.BinaryMessage, append(msg, ev.Cursor.RGBA...))

	case active.EventReactivated:
		msg := make([]byte, 5)
		msg[0] = frameKindResize
		binary.LittleEndian.PutUint16(msg[1:], ev.DesktopWidth)
		binary.LittleEndian.PutUint16(msg[3:], ev.DesktopHeight)
		return ws.WriteMessage(websocket.BinaryMessage, msg)

	case active.EventErrorInfo:
		return ws.WriteJSON(map[string]interface{}{"errorInfo": ev.ErrorCode})

	case active.EventTerminated:
		return fmt.Errorf("session terminated: %s", ev.Reason)

	case active.EventWarning:
		gw.metrics.codecWarning()
		log.Debug("active: %s", ev.Message)
		return nil

	default:
		return nil
	}
}

// encodeRegion serializes one dirty rectangle of the decoded image.
func encodeRegion(img *graphics.Image, r graphics.Rect) []byte {
	msg := make([]byte, 9, 9+r.W*r.H*4)
	msg[0] = frameKindRegion
	binary.LittleEndian.PutUint16(msg[1:], uint16(r.X)) // #nosec G115
	binary.LittleEndian.PutUint16(msg[3:], uint16(r.Y)) // #nosec G115
	binary.LittleEndian.PutUint16(msg[5:], uint16(r.W)) // #nosec G115
	binary.LittleEndian.PutUint16(msg[7:], uint16(r.H)) // #nosec G115

	stride := img.Width * 4
	for y := r.Y; y < r.Y+r.H && y < img.Height; y++ {
		row := img.Pixels[y*stride+r.X*4 : y*stride+min(r.X+r.W, img.Width)*4]
		msg = append(msg, row...)
	}
	return msg
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func translateInput(msg inputMessage) []active.Command {
	switch msg.Type {
	case "key":
		return []active.Command{active.KeyEvent{Scancode: uint8(msg.Code), Down: msg.Down, Extended: msg.Extended}} // #nosec G115
	case "unicode":
		return []active.Command{active.UnicodeKeyEvent{Code: msg.Code, Down: msg.Down}}
	case "move":
		return []active.Command{active.MouseMove{X: msg.X, Y: msg.Y}}
	case "button":
		return []active.Command{active.MouseButton{Button: msg.Button, Down: msg.Down, X: msg.X, Y: msg.Y}}
	case "wheel":
		return []active.Command{active.MouseWheel{Delta: msg.Delta, X: msg.X, Y: msg.Y}}
	case "sync":
		return []active.Command{active.SyncToggles{Caps: msg.Caps, Num: msg.Num, Scroll: msg.Scroll}}
	case "resize":
		return []active.Command{active.Resize{Width: msg.Width, Height: msg.Height}}
	case "suppress":
		return []active.Command{active.SuppressOutput{Allow: msg.Allow, Rect: graphics.Rect{W: int(msg.Width), H: int(msg.Height)}}}
	case "shutdown":
		return []active.Command{active.Shutdown{}}
	default:
		return nil
	}
}
