package datasource

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

func TestHTTPSourceFetchQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"symbol":"aapl","price":187.5,"volume":1200,"timestamp":1767225600}`))
		case "ZERO":
			_, _ = w.Write([]byte(`{"symbol":"ZERO","price":0}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource("alpha", srv.URL, time.Second)
	assert.Equal(t, "alpha", src.Name())

	q, err := src.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "alpha", q.Source)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 187.5, q.Price)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), q.Timestamp)

	_, err = src.FetchQuote(context.Background(), "ZERO")
	assert.ErrorIs(t, err, ErrBadQuote)

	_, err = src.FetchQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestHTTPEquityProvider(t *testing.T) {
	body := `{"equity":25000.5}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewHTTPEquityProvider(srv.URL, time.Second)
	v, err := p.Equity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25000.5, v)

	body = `{}`
	_, err = p.Equity(context.Background())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	a := NewHTTPSource("a", "http://localhost:1", time.Second)
	b := NewHTTPSource("b", "http://localhost:2", time.Second)
	r := NewRegistry(a, b)

	got, err := r.Get("b")
	require.NoError(t, err)
	assert.Same(t, b, got)
	_, err = r.Get("c")
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestStreamSourceKeepsLatestTrade(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"BTC","p":100,"v":1,"t":2000},{"s":"BTC","p":90,"v":1,"t":1000}]}`))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewStreamSource(StreamConfig{
		Name:    "ws",
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"BTC"},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	assert.Equal(t, "BTC", <-subscribed)
	require.Eventually(t, func() bool {
		_, err := src.FetchQuote(context.Background(), "btc")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	q, err := src.FetchQuote(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Price)
	assert.Equal(t, "ws", q.Source)

	_, err = src.FetchQuote(context.Background(), "ETH")
	assert.ErrorIs(t, err, ErrNoQuote)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamSourceStaleQuote(t *testing.T) {
	src := NewStreamSource(StreamConfig{Name: "ws", MaxQuoteAge: time.Minute}, nil)
	src.now = func() time.Time { return time.UnixMilli(10_000_000).UTC() }
	src.apply([]byte(`{"type":"trade","data":[{"s":"ETH","p":3000,"v":2,"t":1000}]}`))

	_, err := src.FetchQuote(context.Background(), "ETH")
	assert.ErrorIs(t, err, ErrNoQuote)
}
