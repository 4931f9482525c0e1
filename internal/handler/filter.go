package handler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
	"github.com/kulaginds/wiener-restore/internal/config"
	"github.com/kulaginds/wiener-restore/internal/logging"
	"github.com/kulaginds/wiener-restore/internal/protocol/filterpdu"
)

const (
	webSocketReadBufferSize  = 8192
	webSocketWriteBufferSize = 8192 * 2
)

// Handler serves the filter websocket.
type Handler struct {
	cfg   *config.Config
	conns *semaphore.Weighted
}

// New returns a Handler bound to cfg. A nil cfg falls back to the global
// configuration, then to the defaults.
func New(cfg *config.Config) *Handler {
	if cfg == nil {
		cfg = config.GetGlobalConfig()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &Handler{
		cfg:   cfg,
		conns: semaphore.NewWeighted(int64(cfg.Security.MaxConnections)),
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Filter upgrades the request and answers every binary FilterRequest on the
// connection with one FilterResponse.
func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !h.isAllowedOrigin(origin) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	if !h.conns.TryAcquire(1) {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	defer h.conns.Release(1)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  webSocketReadBufferSize,
		WriteBufferSize: webSocketWriteBufferSize,
		CheckOrigin: func(*http.Request) bool {
			// already checked above
			return true
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("upgrade websocket: %v", err)
		return
	}

	defer func() {
		if err = wsConn.Close(); err != nil {
			logging.Debug("error closing websocket: %v", err)
		}
	}()

	// sessions outlive the HTTP server timeouts
	_ = wsConn.SetReadDeadline(time.Time{})
	_ = wsConn.SetWriteDeadline(time.Time{})
	wsConn.SetReadLimit(int64(h.cfg.Security.MaxMessageSize))
	logging.Info("filter session opened from %s", r.RemoteAddr)

	var served int
	for {
		if err = r.Context().Err(); err != nil {
			return
		}

		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.HasSuffix(err.Error(), "use of closed network connection") {
				logging.Info("filter session from %s closed after %d blocks", r.RemoteAddr, served)
				return
			}

			logging.Warn("error reading message from ws: %v", err)
			return
		}

		var resp *filterpdu.FilterResponse
		if msgType != websocket.BinaryMessage {
			resp = errorResponse(filterpdu.StatusBadRequest, 0, 0, errors.New("expected binary message"))
		} else {
			resp = h.serve(data)
		}
		if resp.Status == filterpdu.StatusOK {
			served++
		}

		var out bytes.Buffer
		if err = resp.Serialize(&out); err != nil {
			logging.Error("encode response: %v", err)
			return
		}

		if err = wsConn.WriteMessage(websocket.BinaryMessage, out.Bytes()); err != nil {
			if errors.Is(err, websocket.ErrCloseSent) {
				return
			}

			logging.Warn("failed sending message to ws: %v", err)
			return
		}
	}
}

// serve decodes and filters one request.
func (h *Handler) serve(data []byte) *filterpdu.FilterResponse {
	var req filterpdu.FilterRequest
	if err := req.Deserialize(bytes.NewReader(data), h.cfg.Filter.MaxBlockSize); err != nil {
		return errorResponse(filterpdu.StatusBadRequest, req.Width, req.Height, fmt.Errorf("decode request: %w", err))
	}

	p := req.Params()
	if p.Conv.Round0 == 0 && p.Conv.Round1 == 0 {
		p.Conv = wiener.WienerConvolveParams(p.BitDepth)
	}

	if h.cfg.Filter.CheckTaps || req.Flags&filterpdu.FlagCheckTaps != 0 {
		for _, k := range []wiener.Kernel{p.XKernel, p.YKernel} {
			if err := k.CheckRange(); err != nil {
				return errorResponse(filterpdu.StatusBadRequest, req.Width, req.Height, err)
			}
		}
	}

	w, ht := int(req.Width), int(req.Height)
	dst := wiener.NewPlane(image.Rect(0, 0, w, ht))
	if err := wiener.ConvolveAddSrc(dst, image.Point{}, req.Source(), image.Point{}, w, ht, p); err != nil {
		status := filterpdu.StatusFilterError
		if isRequestError(err) {
			status = filterpdu.StatusBadRequest
		}
		logging.Debug("filter %dx%d block: %v", w, ht, err)
		return errorResponse(status, req.Width, req.Height, err)
	}

	return &filterpdu.FilterResponse{
		Status:  filterpdu.StatusOK,
		Width:   req.Width,
		Height:  req.Height,
		Samples: dst.Pix,
	}
}

// isRequestError reports errors caused by what the client sent rather than
// by the engine itself.
func isRequestError(err error) bool {
	for _, target := range []error{
		wiener.ErrGeometry,
		wiener.ErrStep,
		wiener.ErrReservedTap,
		wiener.ErrBitDepth,
		wiener.ErrRounding,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorResponse(status uint8, w, h uint16, err error) *filterpdu.FilterResponse {
	return &filterpdu.FilterResponse{
		Status:  status,
		Width:   w,
		Height:  h,
		Message: err.Error(),
	}
}

func (h *Handler) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	normalized := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	normalized = strings.TrimSuffix(normalized, "/")

	// Always allow localhost-style origins for development
	if strings.HasPrefix(normalized, "localhost") || strings.HasPrefix(normalized, "127.0.0.1") {
		return true
	}

	allowed := h.cfg.Security.AllowedOrigins
	if len(allowed) == 0 {
		return false
	}

	for _, entry := range allowed {
		candidate := strings.TrimSpace(entry)
		if candidate == "" {
			continue
		}

		// Support allow-list entries with or without scheme
		if candidate == origin || candidate == normalized {
			return true
		}

		if strings.TrimPrefix(candidate, "http://") == normalized || strings.TrimPrefix(candidate, "https://") == normalized {
			return true
		}
	}

	return false
}
