package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/odissey/internal/utils"
)

// 服务端连接关闭后，写协程应立即退出，而不是等到下一次 ping
func TestWritePumpExitsOnClose(t *testing.T) {
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	defer srv.Close()

	clientConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer clientConn.Close()

	var conn *websocket.Conn
	select {
	case conn = <-serverConns:
	case <-time.After(5 * time.Second):
		t.Fatal("upgrade timed out")
	}

	hub := NewTranscriptHub(utils.NewMetricsCollector())
	defer hub.Shutdown()

	client := newTranscriptClient(conn, "s-1")
	exited := make(chan struct{})
	go func() {
		hub.writePump(client)
		close(exited)
	}()

	client.Close()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("writePump still running after Close")
	}

	// 重复关闭不会 panic
	client.Close()
}
