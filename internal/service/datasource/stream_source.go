package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/domain/repository"
	"SignalGuard/pkg/logger"

	"github.com/gorilla/websocket"
)

type StreamConfig struct {
	Name           string
	URL            string // full websocket URL, token included if the feed needs one
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	MaxQuoteAge    time.Duration // older last trades are reported as missing; 0 keeps them forever
}

type streamTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type streamMessage struct {
	Type string        `json:"type"`
	Data []streamTrade `json:"data"`
}

// StreamSource keeps the last trade per symbol from a websocket trade feed and serves
// FetchQuote from it. Run owns the connection and reconnects until its context ends.
type StreamSource struct {
	cfg StreamConfig
	log *logger.Logger
	now func() time.Time

	mu     sync.RWMutex
	last   map[string]models.Quote
	conn   *websocket.Conn
	connMu sync.Mutex
}

func NewStreamSource(cfg StreamConfig, l *logger.Logger) *StreamSource {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	return &StreamSource{
		cfg:  cfg,
		log:  l.With(logger.String("source", cfg.Name)),
		now:  time.Now,
		last: make(map[string]models.Quote),
	}
}

func (s *StreamSource) Name() string { return s.cfg.Name }

func (s *StreamSource) FetchQuote(_ context.Context, symbol string) (models.Quote, error) {
	s.mu.RLock()
	q, ok := s.last[strings.ToUpper(symbol)]
	s.mu.RUnlock()
	if !ok {
		return models.Quote{}, fmt.Errorf("%s %s: %w", s.cfg.Name, symbol, ErrNoQuote)
	}
	if s.cfg.MaxQuoteAge > 0 && s.now().Sub(q.Timestamp) > s.cfg.MaxQuoteAge {
		return models.Quote{}, fmt.Errorf("%s %s stale since %s: %w", s.cfg.Name, symbol, q.Timestamp.Format(time.RFC3339), ErrNoQuote)
	}
	return q, nil
}

// Run connects, subscribes and reads until ctx is done, reconnecting after failures.
func (s *StreamSource) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("stream disconnected", logger.Error(err), logger.Duration("retry_in_ms", s.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *StreamSource) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer s.closeConn(conn)

	for _, sym := range s.cfg.Symbols {
		if err := s.write(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.log.Info("stream connected", logger.Strings("symbols", s.cfg.Symbols))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(sessCtx)
	// unblock ReadMessage when the caller stops us
	go func() {
		<-sessCtx.Done()
		s.closeConn(conn)
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		s.apply(b)
	}
}

func (s *StreamSource) apply(b []byte) {
	var m streamMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range m.Data {
		if d.S == "" || d.P <= 0 {
			continue
		}
		sym := strings.ToUpper(d.S)
		ts := time.UnixMilli(d.T).UTC()
		if prev, ok := s.last[sym]; ok && prev.Timestamp.After(ts) {
			continue
		}
		s.last[sym] = models.Quote{Source: s.cfg.Name, Symbol: sym, Price: d.P, Volume: d.V, Timestamp: ts}
	}
}

func (s *StreamSource) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			s.connMu.Unlock()
		}
	}
}

func (s *StreamSource) write(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return s.conn.WriteJSON(v)
}

func (s *StreamSource) closeConn(c *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	_ = c.Close()
	if s.conn == c {
		s.conn = nil
	}
}

var _ repository.DataSource = (*StreamSource)(nil)
