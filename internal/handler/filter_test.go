package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
	"github.com/kulaginds/wiener-restore/internal/config"
	"github.com/kulaginds/wiener-restore/internal/protocol/filterpdu"
)

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, string) {
	t.Helper()
	h := New(cfg)
	mux := http.NewServeMux()
	mux.HandleFunc("/filter", h.Filter)
	mux.HandleFunc("/healthz", h.Health)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http") + "/filter"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func constantRequest(w, h uint16, v uint16) *filterpdu.FilterRequest {
	req := &filterpdu.FilterRequest{
		BitDepth: 8,
		Width:    w,
		Height:   h,
		XKernel:  wiener.IdentityKernel,
		YKernel:  wiener.IdentityKernel,
	}
	req.Samples = make([]uint16, req.SampleCount())
	for i := range req.Samples {
		req.Samples[i] = v
	}
	return req
}

func roundTrip(t *testing.T, conn *websocket.Conn, req *filterpdu.FilterRequest) *filterpdu.FilterResponse {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, req.Serialize(&buf))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()))

	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)

	var resp filterpdu.FilterResponse
	require.NoError(t, resp.Deserialize(bytes.NewReader(data)))
	return &resp
}

func TestFilter_IdentityRoundTrip(t *testing.T) {
	_, url := newTestServer(t, config.Defaults())
	conn := dial(t, url)

	// several requests on one connection
	for _, v := range []uint16{0, 77, 255} {
		resp := roundTrip(t, conn, constantRequest(16, 5, v))
		require.NoError(t, resp.Err())
		assert.Equal(t, uint16(16), resp.Width)
		assert.Equal(t, uint16(5), resp.Height)
		require.Len(t, resp.Samples, 16*5)
		for _, s := range resp.Samples {
			require.Equal(t, v, s)
		}
	}
}

func TestFilter_SmoothingKernel(t *testing.T) {
	_, url := newTestServer(t, config.Defaults())
	conn := dial(t, url)

	req := constantRequest(8, 8, 100)
	req.BitDepth = 10
	req.Flags = filterpdu.FlagCheckTaps
	req.XKernel = wiener.NewKernel(3, -7, 15)
	req.YKernel = wiener.NewKernel(-1, 4, 9)

	resp := roundTrip(t, conn, req)
	require.NoError(t, resp.Err())
	for _, s := range resp.Samples {
		require.Equal(t, uint16(100), s)
	}
}

func TestFilter_ErrorResponses(t *testing.T) {
	cfg := config.Defaults()
	cfg.Filter.CheckTaps = false
	_, url := newTestServer(t, cfg)
	conn := dial(t, url)

	t.Run("width not a multiple of 8", func(t *testing.T) {
		resp := roundTrip(t, conn, constantRequest(12, 4, 1))
		assert.Equal(t, filterpdu.StatusBadRequest, resp.Status)
		assert.Contains(t, resp.Message, wiener.ErrGeometry.Error())
	})

	t.Run("taps out of range when asked", func(t *testing.T) {
		req := constantRequest(8, 4, 1)
		req.Flags = filterpdu.FlagCheckTaps
		req.XKernel = wiener.NewKernel(20, 0, 0)
		resp := roundTrip(t, conn, req)
		assert.Equal(t, filterpdu.StatusBadRequest, resp.Status)
	})

	t.Run("taps out of range accepted without flag", func(t *testing.T) {
		req := constantRequest(8, 4, 1)
		req.XKernel = wiener.NewKernel(20, 0, 0)
		resp := roundTrip(t, conn, req)
		assert.Equal(t, filterpdu.StatusOK, resp.Status)
	})

	t.Run("block too large", func(t *testing.T) {
		resp := roundTrip(t, conn, constantRequest(136, 1, 1))
		assert.Equal(t, filterpdu.StatusBadRequest, resp.Status)
		assert.Contains(t, resp.Message, "too large")
	})

	t.Run("text message", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var resp filterpdu.FilterResponse
		require.NoError(t, resp.Deserialize(bytes.NewReader(data)))
		assert.Equal(t, filterpdu.StatusBadRequest, resp.Status)
	})

	t.Run("connection survives errors", func(t *testing.T) {
		resp := roundTrip(t, conn, constantRequest(8, 1, 9))
		require.NoError(t, resp.Err())
	})
}

func TestFilter_ForbiddenOrigin(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.AllowedOrigins = []string{"https://allowed.example"}
	_, url := newTestServer(t, cfg)

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"https://allowed.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestFilter_ConnectionLimit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.MaxConnections = 1
	_, url := newTestServer(t, cfg)

	conn := dial(t, url)
	// the first session is held until the server reads its next message
	resp := roundTrip(t, conn, constantRequest(8, 1, 3))
	require.NoError(t, resp.Err())

	_, httpResp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, httpResp)
	assert.Equal(t, http.StatusServiceUnavailable, httpResp.StatusCode)
}

func TestIsAllowedOrigin(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.AllowedOrigins = []string{"example.com", "https://secure.example"}
	h := New(cfg)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", false},
		{"http://localhost:8080", true},
		{"http://127.0.0.1:3000", true},
		{"https://example.com", true},
		{"http://example.com/", true},
		{"https://secure.example", true},
		{"https://other.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, h.isAllowedOrigin(tt.origin))
		})
	}

	assert.False(t, New(config.Defaults()).isAllowedOrigin("https://example.com"))
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, config.Defaults())
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body.String())
}
