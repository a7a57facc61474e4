package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"chattour/internal/metrics"
	"chattour/internal/wire"
)

const queryTimeout = 5 * time.Second

// Hub owns the connected clients and their live query subscriptions.
// Run is the only goroutine that touches clients and subs.
type Hub struct {
	clients map[*Client]bool
	subs    map[*Client]map[int64]string

	Register    chan *Client      // New client joins
	Unregister  chan *Client      // Client leaves
	subscribe   chan subscription // Client starts a live query
	unsubscribe chan subscription // Client drops a live query
	reply       chan outbound     // Mutation results -> one client
	invalidate  chan string       // Notifier -> re-run live queries

	functions *Functions
	notifier  Notifier
	log       zerolog.Logger

	stopped chan struct{}
}

func NewHub(functions *Functions, notifier Notifier, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		subs:        make(map[*Client]map[int64]string),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		reply:       make(chan outbound),
		invalidate:  make(chan string),
		functions:   functions,
		notifier:    notifier,
		log:         logger.With().Str("component", "hub").Logger(),
		stopped:     make(chan struct{}),
	}
}

// Run processes hub events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return nil

		case client := <-h.Register:
			h.clients[client] = true
			metrics.WSConnections.Inc()

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if h.subs[sub.client] == nil {
				h.subs[sub.client] = make(map[int64]string)
			}
			h.subs[sub.client][sub.id] = sub.query
			h.deliver(sub.client, h.evaluate(ctx, sub.id, sub.query))

		case sub := <-h.unsubscribe:
			delete(h.subs[sub.client], sub.id)

		case out := <-h.reply:
			if _, ok := h.clients[out.client]; ok {
				h.deliver(out.client, out.payload)
			}

		case topic := <-h.invalidate:
			h.log.Debug().Str("topic", topic).Msg("invalidated")
			h.refresh(ctx)
		}
	}
}

// SubscribeToNotifier forwards invalidations from other instances (and this
// one) into the run loop.
func (h *Hub) SubscribeToNotifier(ctx context.Context) error {
	ch := h.notifier.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case topic, ok := <-ch:
			if !ok {
				return nil
			}
			select {
			case h.invalidate <- topic:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// refresh evaluates every live query once and fans the result out.
func (h *Hub) refresh(ctx context.Context) {
	type result struct {
		value json.RawMessage
		err   error
	}
	results := make(map[string]result)

	for client, queries := range h.subs {
		for id, query := range queries {
			r, ok := results[query]
			if !ok {
				r.value, r.err = h.query(ctx, query)
				results[query] = r
			}
			frame := wire.QueryResult(id, r.value)
			if r.err != nil {
				frame = wire.QueryError(id, r.err)
			}
			if !h.deliver(client, encode(frame)) {
				break
			}
		}
	}
}

func (h *Hub) evaluate(ctx context.Context, id int64, query string) []byte {
	value, err := h.query(ctx, query)
	if err != nil {
		return encode(wire.QueryError(id, err))
	}
	return encode(wire.QueryResult(id, value))
}

func (h *Hub) query(ctx context.Context, name string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	metrics.QueryEvaluations.WithLabelValues(name).Inc()
	value, err := h.functions.Query(ctx, name)
	if err != nil {
		h.log.Error().Err(err).Str("query", name).Msg("query failed")
	}
	return value, err
}

// deliver queues payload for client and drops the client if it cannot keep up.
func (h *Hub) deliver(client *Client, payload []byte) bool {
	select {
	case client.Send <- payload:
		return true
	default:
		h.log.Warn().Int("user_id", client.Caller.UserID).Msg("client too slow, dropping")
		h.drop(client)
		return false
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	delete(h.subs, client)
	close(client.Send)
	metrics.WSConnections.Dec()
}

// send hands v to the run loop unless the hub has stopped.
func send[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.stopped:
		return false
	}
}

func encode(frame wire.ServerFrame) []byte {
	data, _ := json.Marshal(frame)
	return data
}
