package wstransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:136.0) Gecko/20100101 Firefox/136.0"
const connectTimeout = 30 * time.Second

// Transport is a thin envelope over one WebSocket connection: connect,
// send, read, close. Callers must not issue concurrent Send or ReadMessage
// calls on the same Transport.
type Transport struct {
	conn *websocket.Conn
}

// Connect dials rawURL (scheme wss/https imply TLS on port 443, everything
// else plaintext on port 80, unless rawURL carries an explicit port),
// performing the WS handshake at path "/". PROXY overrides the dial
// target's host:port while SNI and the handshake Host stay pinned to
// rawURL's own host, matching the venue's interception seam.
func Connect(ctx context.Context, rawURL string) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	secure := u.Scheme == "wss" || u.Scheme == "https"
	wsScheme := "ws"
	if secure {
		wsScheme = "wss"
	}

	port := u.Port()
	if port == "" {
		if secure {
			port = "443"
		} else {
			port = "80"
		}
	}

	dialAddr := proxiedHostPort(u.Hostname(), port)

	dialer := &websocket.Dialer{
		HandshakeTimeout: connectTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := &net.Dialer{Timeout: connectTimeout}
			return d.DialContext(ctx, network, dialAddr)
		},
	}
	if secure {
		tlsCfg := &tls.Config{ServerName: u.Hostname()}
		if keylog := os.Getenv("SSLKEYLOGFILE"); keylog != "" {
			if w, err := os.OpenFile(keylog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				tlsCfg.KeyLogWriter = w
			}
		}
		dialer.TLSClientConfig = tlsCfg
	}

	wsURL := fmt.Sprintf("%s://%s/", wsScheme, u.Host)

	header := http.Header{"User-Agent": {userAgent}}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, wsURL, header)
	if err != nil {
		return nil, err
	}

	return &Transport{conn: conn}, nil
}

// Close sends a normal-closure control frame with a 1 s deadline.
func (t *Transport) Close() error {
	deadline := time.Now().Add(1 * time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}

// Send writes one text frame.
func (t *Transport) Send(message string) error {
	err := t.conn.WriteMessage(websocket.TextMessage, []byte(message))
	if isDebugEnabled() {
		fmt.Fprintln(os.Stderr, ">>", message)
	}
	return err
}

// ReadMessage reads one frame, with an optional deadline (zero means no
// deadline). A deadline hit returns an error satisfying net.Error.Timeout.
func (t *Transport) ReadMessage(timeout time.Duration) (string, error) {
	if timeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if isDebugEnabled() {
		fmt.Fprintln(os.Stderr, "<<", string(data))
	}
	return string(data), nil
}

func isDebugEnabled() bool {
	v := strings.ToLower(os.Getenv("DEBUG"))
	return v == "1" || v == "true" || v == "yes"
}

// proxiedHostPort overrides host:port with the PROXY environment variable
// when set, defaulting its port to 8080.
func proxiedHostPort(host, port string) string {
	proxy := os.Getenv("PROXY")
	if proxy == "" {
		return net.JoinHostPort(host, port)
	}

	if u, err := url.Parse(proxy); err == nil && u.Host != "" {
		if u.Port() == "" {
			return net.JoinHostPort(u.Hostname(), "8080")
		}
		return u.Host
	}

	if !strings.Contains(proxy, ":") {
		return net.JoinHostPort(proxy, "8080")
	}
	return proxy
}
