package binutil

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"golang.org/x/net/websocket"
)

func TestServeHTTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Equal(t, nil, err)
	srv := ServeHTTP(ln, func(ws *websocket.Conn) {
		io.Copy(ws, ws)
	})
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	assert.Equal(t, nil, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.T(t, strings.Contains(string(body), "sectorworld_"), "metrics should carry the namespace")

	ws, err := websocket.Dial("ws://"+ln.Addr().String()+"/ws", "", "http://localhost/")
	assert.Equal(t, nil, err)
	defer ws.Close()
	_, err = ws.Write([]byte("echo"))
	assert.Equal(t, nil, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(ws, buf)
	assert.Equal(t, nil, err)
	assert.Equal(t, "echo", string(buf))
}

func TestHTTPDisabled(t *testing.T) {
	srv, err := SetupHTTPServer("127.0.0.1", 0, nil)
	assert.Equal(t, nil, err)
	assert.T(t, srv == nil)
}

func TestProcessStats(t *testing.T) {
	ps, err := NewProcessStats()
	assert.Equal(t, nil, err)
	rss, err := ps.MemoryRSS(context.Background())
	assert.Equal(t, nil, err)
	assert.T(t, rss > 0)
	_, err = ps.CPUPercent(context.Background())
	assert.Equal(t, nil, err)
}
