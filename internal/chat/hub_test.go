package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chattour/internal/chat"
	"chattour/internal/wire"
)

type peer struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []wire.ServerFrame
}

func startHub(t *testing.T) string {
	t.Helper()
	notifier := chat.NewMemoryNotifier()
	hub := chat.NewHub(chat.NewFunctions(chat.NewMemoryStore(), notifier, 100), notifier, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go hub.SubscribeToNotifier(ctx)
	require.Eventually(t, func() bool { return notifier.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(chat.NewHandler(hub).ServeWs))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *peer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn}
}

func (p *peer) send(f wire.ClientFrame) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(f))
}

// next returns the next frame, splitting batched websocket messages.
func (p *peer) next() wire.ServerFrame {
	p.t.Helper()
	for len(p.pending) == 0 {
		p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := p.conn.ReadMessage()
		require.NoError(p.t, err)
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			var f wire.ServerFrame
			require.NoError(p.t, json.Unmarshal(line, &f))
			p.pending = append(p.pending, f)
		}
	}
	f := p.pending[0]
	p.pending = p.pending[1:]
	return f
}

// expectSilence fails if a frame arrives within d.
func (p *peer) expectSilence(d time.Duration) {
	p.t.Helper()
	require.Empty(p.t, p.pending)
	p.conn.SetReadDeadline(time.Now().Add(d))
	_, data, err := p.conn.ReadMessage()
	require.Error(p.t, err, "unexpected frame %s", data)
}

func messages(t *testing.T, f wire.ServerFrame) []chat.Message {
	t.Helper()
	require.Equal(t, wire.TypeQueryResult, f.Type, "error: %s", f.Error)
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(f.Value, &msgs))
	return msgs
}

func TestSubscribeGetsSnapshotImmediately(t *testing.T) {
	p := dial(t, startHub(t))

	p.send(wire.ClientFrame{Type: wire.TypeSubscribe, ID: 7, Query: chat.ListQuery})
	f := p.next()
	require.Equal(t, int64(7), f.ID)
	require.Empty(t, messages(t, f))
}

func TestMutationFansOutToSubscribers(t *testing.T) {
	url := startHub(t)
	reader := dial(t, url)
	writer := dial(t, url)

	reader.send(wire.ClientFrame{Type: wire.TypeSubscribe, ID: 1, Query: chat.ListQuery})
	require.Empty(t, messages(t, reader.next()))

	writer.send(wire.ClientFrame{
		Type:    wire.TypeMutate,
		ID:      42,
		Command: chat.SendCommand,
		Args:    map[string]string{"author": "Ada", "body": "hello"},
	})
	res := writer.next()
	require.Equal(t, wire.TypeMutationResult, res.Type)
	require.Equal(t, int64(42), res.ID)

	msgs := messages(t, reader.next())
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Body)
	require.Equal(t, "Ada", msgs[0].Author)

	// The writer holds no subscription, so it only got its result.
	writer.expectSilence(200 * time.Millisecond)
}

func TestMutationErrorGoesToCallerOnly(t *testing.T) {
	p := dial(t, startHub(t))

	p.send(wire.ClientFrame{Type: wire.TypeMutate, ID: 3, Command: chat.SendCommand, Args: map[string]string{"author": "Ada"}})
	f := p.next()
	require.Equal(t, wire.TypeMutationError, f.Type)
	require.Contains(t, f.Error, "body")
}

func TestUnknownQueryIsRejected(t *testing.T) {
	p := dial(t, startHub(t))

	p.send(wire.ClientFrame{Type: wire.TypeSubscribe, ID: 9, Query: "messages:nope"})
	f := p.next()
	require.Equal(t, wire.TypeQueryError, f.Type)
	require.Equal(t, int64(9), f.ID)
}

func TestUnsubscribeStopsUpdates(t *testing.T) {
	url := startHub(t)
	reader := dial(t, url)
	writer := dial(t, url)

	reader.send(wire.ClientFrame{Type: wire.TypeSubscribe, ID: 1, Query: chat.ListQuery})
	reader.next()
	reader.send(wire.ClientFrame{Type: wire.TypeUnsubscribe, ID: 1})

	// A mutation round trip on the reader orders it after the unsubscribe.
	reader.send(wire.ClientFrame{Type: wire.TypeMutate, ID: 2, Command: chat.SendCommand, Args: map[string]string{"author": "A", "body": "x"}})
	require.Equal(t, wire.TypeMutationResult, reader.next().Type)

	writer.send(wire.ClientFrame{Type: wire.TypeMutate, ID: 1, Command: chat.SendCommand, Args: map[string]string{"author": "B", "body": "y"}})
	require.Equal(t, wire.TypeMutationResult, writer.next().Type)

	reader.expectSilence(200 * time.Millisecond)
}

func TestMalformedFrameIsIgnored(t *testing.T) {
	p := dial(t, startHub(t))

	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	p.send(wire.ClientFrame{Type: wire.TypeSubscribe, ID: 1, Query: chat.ListQuery})
	require.Empty(t, messages(t, p.next()))
}
