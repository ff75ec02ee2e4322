package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func echoServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestConnect_SendAndReceiveEcho(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	transport, err := Connect(context.Background(), wsURL)
	require.NoError(t, err)
	defer transport.Close()

	require.NoError(t, transport.Send("hello"))
	got, err := transport.ReadMessage(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestReadMessage_DeadlineHitReportsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	transport, err := Connect(context.Background(), wsURL)
	require.NoError(t, err)
	defer transport.Close()

	_, err = transport.ReadMessage(50 * time.Millisecond)
	require.Error(t, err)
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
}

func TestClose_SendsNormalClosure(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	transport, err := Connect(context.Background(), wsURL)
	require.NoError(t, err)
	require.NoError(t, transport.Close())
}
