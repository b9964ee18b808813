package output

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"libdb.so/ledmatrix/led"
)

// DefaultPreviewThrottle limits previews to about 20 frames per second.
const DefaultPreviewThrottle = 50 * time.Millisecond

// previewWriteTimeout bounds how long one frame may block on a slow client.
const previewWriteTimeout = 100 * time.Millisecond

// PreviewFrame is the message sent to preview clients. RGB holds the
// base64-encoded strip, three bytes per LED in strip order.
type PreviewFrame struct {
	Width  int    `json:"w"`
	Height int    `json:"h"`
	Frame  uint64 `json:"frame"`
	RGB    string `json:"rgb"`
}

// Preview streams frames to websocket clients so the matrix can be watched
// from a browser. It is an http.Handler; every request is upgraded to a
// websocket connection.
type Preview struct {
	width    int
	height   int
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	frame    uint64
	throttle time.Duration
	lastEmit time.Time
}

var (
	_ Sink         = (*Preview)(nil)
	_ http.Handler = (*Preview)(nil)
)

// NewPreview creates a preview for a width by height matrix.
func NewPreview(width, height int, logger *slog.Logger) *Preview {
	return &Preview{
		width:  width,
		height: height,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  map[*websocket.Conn]struct{}{},
		throttle: DefaultPreviewThrottle,
	}
}

// SetThrottle sets the minimum time between two messages. Frames flushed in
// between are dropped.
func (p *Preview) SetThrottle(d time.Duration) {
	p.mu.Lock()
	p.throttle = d
	p.mu.Unlock()
}

// ServeHTTP upgrades the request and registers the client.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Debug("preview upgrade failed", "error", err)
		return
	}

	p.mu.Lock()
	p.clients[conn] = struct{}{}
	p.mu.Unlock()

	p.logger.Debug("preview client connected", "remote", r.RemoteAddr)

	// Drain until the client goes away.
	go func() {
		defer p.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients returns the number of connected clients.
func (p *Preview) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Preview) drop(conn *websocket.Conn) {
	p.mu.Lock()
	delete(p.clients, conn)
	p.mu.Unlock()
	conn.Close()
}

// Flush sends the frame to every connected client. Clients that cannot take
// the frame within previewWriteTimeout are dropped.
func (p *Preview) Flush(leds led.LEDs) error {
	p.mu.Lock()
	p.frame++

	now := time.Now()
	if len(p.clients) == 0 || p.lastEmit.Add(p.throttle).After(now) {
		p.mu.Unlock()
		return nil
	}
	p.lastEmit = now

	msg := PreviewFrame{
		Width:  p.width,
		Height: p.height,
		Frame:  p.frame,
	}

	clients := make([]*websocket.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.mu.Unlock()

	// Flush is only called from the frame loop, so each conn has one writer.
	msg.RGB = base64.StdEncoding.EncodeToString(leds.AsPixels())
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(previewWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			p.logger.Debug("dropping preview client", "error", err)
			p.drop(conn)
		}
	}

	return nil
}

// Close disconnects every client.
func (p *Preview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for conn := range p.clients {
		conn.Close()
		delete(p.clients, conn)
	}
	return nil
}
