package adapters

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
)

var displayKinds = []bus.Kind{
	bus.WakewordDetected,
	bus.VADSpeechStart,
	bus.VADSpeechEnd,
	bus.ASRRecognitionSuccess,
	bus.ASRRecognitionFailed,
	bus.StateChanged,
	bus.AgentResponse,
	bus.TTSSpeakStart,
	bus.TTSSpeakEnd,
	bus.SessionExpired,
}

type displayEvent struct {
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"msg_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// GUIAdapter is a pure sink: it mirrors display-relevant events to connected
// websocket clients so an external renderer can follow the pipeline.
type GUIAdapter struct {
	stats
	eventBus *bus.EventBus
	cfg      config.GUIConfig

	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	server   *http.Server
	listener net.Listener
	subs     []bus.Subscription
	running  bool

	upgrader websocket.Upgrader
}

func NewGUIAdapter(eventBus *bus.EventBus, cfg config.GUIConfig) *GUIAdapter {
	return &GUIAdapter{
		eventBus: eventBus,
		cfg:      cfg,
		clients:  make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (a *GUIAdapter) Name() string { return "gui_adapter" }

func (a *GUIAdapter) Initialize() error {
	for _, kind := range displayKinds {
		a.subs = append(a.subs, a.eventBus.SubscribeAsync(kind, a.HandleEvent))
	}
	return nil
}

func (a *GUIAdapter) Start() error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gui_adapter: failed to listen on %s: %w", addr, err)
	}
	a.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/events", a.handleWS)
	a.server = &http.Server{Handler: mux}

	go func() {
		if err := a.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("gui", "Event server failed", map[string]any{"error": err.Error()})
		}
	}()

	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	logger.InfoCF("gui", "Display event stream listening", map[string]any{"addr": addr})
	return nil
}

func (a *GUIAdapter) Stop() {
	a.mu.Lock()
	a.running = false
	for conn := range a.clients {
		conn.Close()
	}
	a.clients = make(map[*websocket.Conn]bool)
	a.mu.Unlock()

	if a.server != nil {
		a.server.Close()
	}
}

func (a *GUIAdapter) Cleanup() {
	for _, sub := range a.subs {
		a.eventBus.Unsubscribe(sub)
	}
	a.subs = nil
}

func (a *GUIAdapter) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("gui", "Websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	a.mu.Lock()
	a.clients[conn] = true
	a.mu.Unlock()

	// Drain (and discard) client messages so pings keep the connection alive.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				a.dropClient(conn)
				return
			}
		}
	}()
}

func (a *GUIAdapter) dropClient(conn *websocket.Conn) {
	a.mu.Lock()
	delete(a.clients, conn)
	a.mu.Unlock()
	conn.Close()
}

func (a *GUIAdapter) HandleEvent(ev bus.Event) {
	a.mu.Lock()
	if !a.running || len(a.clients) == 0 {
		a.mu.Unlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(a.clients))
	for conn := range a.clients {
		conns = append(conns, conn)
	}
	a.mu.Unlock()

	a.countProcessed()
	payload := ev.Payload
	// Frame-sized blobs never go to the renderer.
	if boundary, ok := payload.(bus.SpeechBoundary); ok {
		payload = map[string]any{"duration_ms": boundary.DurationMS, "bytes": len(boundary.Audio)}
	}

	data, err := json.Marshal(displayEvent{
		Kind:      string(ev.Kind),
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
		MessageID: ev.MessageID,
		SessionID: ev.SessionID,
		Payload:   payload,
	})
	if err != nil {
		return
	}

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			a.dropClient(conn)
		}
	}
}

func (a *GUIAdapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *GUIAdapter) Statistics() map[string]any {
	snap := a.snapshot()
	a.mu.Lock()
	snap["clients"] = len(a.clients)
	a.mu.Unlock()
	return snap
}
