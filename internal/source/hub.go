package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds connection settings for the hub.
type Config struct {
	// WSURL is the websocket endpoint, e.g. ws://hub:8123/api/websocket.
	WSURL string `toml:"ws_url" mapstructure:"ws_url"`
	// RESTURL is the REST base, e.g. http://hub:8123/api.
	RESTURL string `toml:"rest_url" mapstructure:"rest_url"`
	// Token is the long-lived access token sent during auth.
	Token   string        `toml:"token" mapstructure:"token"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.WSURL) == "" {
		return fmt.Errorf("source: ws_url required")
	}
	if strings.TrimSpace(c.RESTURL) == "" {
		return fmt.Errorf("source: rest_url required")
	}
	if _, err := url.Parse(c.WSURL); err != nil {
		return fmt.Errorf("source: invalid ws_url: %w", err)
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// HubClient implements Client against a home-automation hub speaking a
// websocket event API plus REST endpoints for discovery and statistics.
type HubClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
	closed  atomic.Bool
	msgID   atomic.Int64
}

func NewHubClient(cfg Config, logger *slog.Logger) (*HubClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HubClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "source"),
	}, nil
}

// --- websocket wire messages ---

type wsMessage struct {
	ID    int64    `json:"id,omitempty"`
	Type  string   `json:"type"`
	Event *wsEvent `json:"event,omitempty"`
}

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      wsEventData `json:"data"`
}

type wsEventData struct {
	EntityID string   `json:"entity_id"`
	NewState *wsState `json:"new_state"`
	OldState *wsState `json:"old_state"`
}

type wsState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

func (s *wsState) toState() *State {
	if s == nil {
		return nil
	}
	st := &State{
		Value:       s.State,
		Attributes:  s.Attributes,
		LastChanged: s.LastChanged,
	}
	if u, ok := s.Attributes["unit_of_measurement"].(string); ok {
		st.Unit = u
	}
	if dc, ok := s.Attributes["device_class"].(string); ok {
		st.DeviceClass = dc
	}
	return st
}

// Subscribe dials the hub, authenticates, subscribes to state_changed
// events and starts the read loop delivering them to h.
func (c *HubClient) Subscribe(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("source: nil handler")
	}
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return c.connect(ctx)
}

// Reconnect closes the current connection (if any) and re-establishes
// the subscription with the handler from the previous Subscribe.
func (c *HubClient) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.handler == nil {
		c.mu.Unlock()
		return fmt.Errorf("source: reconnect before subscribe")
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *HubClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("source: dial %s: %w", c.cfg.WSURL, err)
	}
	if err := c.authenticate(conn); err != nil {
		_ = conn.Close()
		return err
	}
	subID := c.msgID.Add(1)
	sub := map[string]any{"id": subID, "type": "subscribe_events", "event_type": "state_changed"}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return fmt.Errorf("source: subscribe: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)
	c.logger.Info("subscribed to state_changed stream", "url", c.cfg.WSURL)
	return nil
}

func (c *HubClient) authenticate(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("source: read auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		// Hubs without auth skip straight to commands.
		if msg.Type == "auth_ok" {
			return nil
		}
		return fmt.Errorf("source: unexpected handshake message %q", msg.Type)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": c.cfg.Token}); err != nil {
		return fmt.Errorf("source: send auth: %w", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("source: read auth result: %w", err)
	}
	if msg.Type != "auth_ok" {
		return fmt.Errorf("source: auth rejected: %q", msg.Type)
	}
	return nil
}

// readLoop delivers events one at a time until the connection dies.
// A dead connection is not re-dialed here; the heartbeat monitor owns recovery.
func (c *HubClient) readLoop(conn *websocket.Conn) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !c.closed.Load() {
				c.logger.Warn("event stream closed", "error", err)
			}
			return
		}
		if msg.Type != "event" || msg.Event == nil || msg.Event.EventType != "state_changed" {
			continue
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h == nil {
			continue
		}
		d := msg.Event.Data
		h(StateChange{
			EntityID: d.EntityID,
			NewState: d.NewState.toState(),
			OldState: d.OldState.toState(),
		})
	}
}

// DiscoverEntities lists all entities via the REST states endpoint.
func (c *HubClient) DiscoverEntities(ctx context.Context) ([]Entity, error) {
	var states []wsState
	if err := c.getJSON(ctx, "/states", &states); err != nil {
		return nil, fmt.Errorf("source: discover entities: %w", err)
	}
	out := make([]Entity, 0, len(states))
	for _, s := range states {
		e := Entity{EntityID: s.EntityID, Attributes: s.Attributes}
		if n, ok := s.Attributes["friendly_name"].(string); ok {
			e.Name = n
		}
		if u, ok := s.Attributes["unit_of_measurement"].(string); ok {
			e.Unit = u
		}
		if dc, ok := s.Attributes["device_class"].(string); ok {
			e.DeviceClass = dc
		}
		out = append(out, e)
	}
	return out, nil
}

type statsRequest struct {
	StatisticIDs []string `json:"statistic_ids"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	Period       string   `json:"period"`
}

// Statistics fetches aggregation buckets per entity over [start, end].
func (c *HubClient) Statistics(ctx context.Context, entityIDs []string, start, end time.Time, period string) (map[string][]StatBucket, error) {
	req := statsRequest{
		StatisticIDs: entityIDs,
		StartTime:    start.UTC().Format(time.RFC3339),
		EndTime:      end.UTC().Format(time.RFC3339),
		Period:       period,
	}
	var out map[string][]StatBucket
	if err := c.postJSON(ctx, "/statistics", req, &out); err != nil {
		return nil, fmt.Errorf("source: fetch statistics: %w", err)
	}
	return out, nil
}

func (c *HubClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RESTURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, v)
}

func (c *HubClient) postJSON(ctx context.Context, path string, body, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RESTURL+path, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, v)
}

func (c *HubClient) doJSON(req *http.Request, v any) error {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *HubClient) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
