package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"chattour/internal/conversation"
	"chattour/internal/reactive"
)

type mutateCall struct {
	command string
	args    map[string]string
}

type fakeBackend struct {
	updates chan reactive.Update[json.RawMessage]

	mu      sync.Mutex
	queries []string
	calls   []mutateCall
	gate    chan struct{}
	err     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{updates: make(chan reactive.Update[json.RawMessage], 16)}
}

func (b *fakeBackend) Subscribe(ctx context.Context, query string) <-chan reactive.Update[json.RawMessage] {
	b.mu.Lock()
	b.queries = append(b.queries, query)
	b.mu.Unlock()
	return b.updates
}

func (b *fakeBackend) Mutate(ctx context.Context, command string, args map[string]string) (json.RawMessage, error) {
	b.mu.Lock()
	b.calls = append(b.calls, mutateCall{command: command, args: args})
	gate, err := b.gate, b.err
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`{"_id":"new"}`), nil
}

func (b *fakeBackend) mutateCalls() []mutateCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mutateCall{}, b.calls...)
}

func (b *fakeBackend) emit(t *testing.T, msgs []conversation.Message) {
	t.Helper()
	raw, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b.updates <- reactive.Update[json.RawMessage]{Value: raw}
}

type harness struct {
	backend *fakeBackend
	queue   *reactive.Queue
	conv    *conversation.Controller
}

func newHarness(t *testing.T, author string, opts ...conversation.Option) *harness {
	t.Helper()
	b := newFakeBackend()
	q := reactive.NewQueue()
	c := conversation.NewController(b, q, author, opts...)
	t.Cleanup(func() {
		c.Close()
		q.Close()
	})
	return &harness{backend: b, queue: q, conv: c}
}

func watchMessages(c *conversation.Controller) (<-chan []conversation.Message, func()) {
	ch := make(chan []conversation.Message, 32)
	cancel := c.OnMessagesChanged(func(m []conversation.Message) { ch <- m })
	return ch, cancel
}

func nextList(t *testing.T, ch <-chan []conversation.Message) []conversation.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
		return nil
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribesToListQuery(t *testing.T) {
	h := newHarness(t, "alice")
	if h.conv.Mode() != conversation.Subscribed {
		t.Fatalf("expected subscribed mode, got %v", h.conv.Mode())
	}

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if len(h.backend.queries) != 1 || h.backend.queries[0] != conversation.ListQuery {
		t.Fatalf("expected one %q subscription, got %v", conversation.ListQuery, h.backend.queries)
	}
}

func TestEmissionsReplaceListVerbatim(t *testing.T) {
	h := newHarness(t, "alice")
	lists, cancel := watchMessages(h.conv)
	defer cancel()

	if initial := nextList(t, lists); len(initial) != 0 {
		t.Fatalf("expected empty initial list, got %v", initial)
	}

	emissions := [][]conversation.Message{
		{{ID: "1", Author: "a", Body: "x"}},
		{{ID: "2", Author: "b", Body: "y"}, {ID: "1", Author: "a", Body: "x"}},
		{{ID: "1", Author: "a", Body: "x"}, {ID: "1", Author: "a", Body: "x"}},
		{},
	}
	for i, e := range emissions {
		h.backend.emit(t, e)
		got := nextList(t, lists)
		if !reflect.DeepEqual(got, e) {
			t.Fatalf("emission %d: expected %v, got %v", i, e, got)
		}
		if cur := h.conv.CurrentMessages(); !reflect.DeepEqual(cur, e) {
			t.Fatalf("emission %d: CurrentMessages() = %v", i, cur)
		}
	}
}

func TestStreamErrorYieldsSentinel(t *testing.T) {
	h := newHarness(t, "alice")
	lists, cancel := watchMessages(h.conv)
	defer cancel()
	nextList(t, lists)

	h.backend.emit(t, []conversation.Message{{ID: "1", Author: "a", Body: "x"}, {ID: "2", Author: "b", Body: "y"}})
	nextList(t, lists)

	h.backend.updates <- reactive.Update[json.RawMessage]{Err: errors.New("socket closed")}
	got := nextList(t, lists)
	if !conversation.IsSentinel(got) {
		t.Fatalf("expected sentinel list, got %v", got)
	}

	h.backend.emit(t, []conversation.Message{{ID: "3", Author: "c", Body: "z"}})
	if got := nextList(t, lists); len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("expected recovery from later emission, got %v", got)
	}
}

func TestUndecodablePayloadYieldsSentinel(t *testing.T) {
	h := newHarness(t, "alice")
	lists, cancel := watchMessages(h.conv)
	defer cancel()
	nextList(t, lists)

	h.backend.updates <- reactive.Update[json.RawMessage]{Value: json.RawMessage(`{"not":"a list"}`)}
	if got := nextList(t, lists); !conversation.IsSentinel(got) {
		t.Fatalf("expected sentinel list, got %v", got)
	}
}

func TestSubmitSendsOnceAndClearsDraft(t *testing.T) {
	h := newHarness(t, "alice")
	h.backend.emit(t, []conversation.Message{{ID: "1", Author: "bob", Body: "hi"}})
	eventually(t, func() bool { return len(h.conv.CurrentMessages()) == 1 })
	h.conv.SetDraft("hello")

	if err := h.conv.Submit().Wait(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.queue.Flush()

	calls := h.backend.mutateCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one mutation, got %d", len(calls))
	}
	want := mutateCall{command: conversation.SendCommand, args: map[string]string{"author": "alice", "body": "hello"}}
	if !reflect.DeepEqual(calls[0], want) {
		t.Fatalf("expected %+v, got %+v", want, calls[0])
	}
	if d := h.conv.Draft(); d != "" {
		t.Fatalf("expected empty draft, got %q", d)
	}
	if msgs := h.conv.CurrentMessages(); len(msgs) != 1 || msgs[0].ID != "1" {
		t.Fatalf("messages changed unexpectedly: %v", msgs)
	}
	if h.conv.Sending() {
		t.Fatal("sending flag still set")
	}
}

func TestSubmitUsesLastDraft(t *testing.T) {
	h := newHarness(t, "alice")
	h.conv.SetDraft("a")
	h.conv.SetDraft("ab")

	if err := h.conv.Submit().Wait(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	calls := h.backend.mutateCalls()
	if len(calls) != 1 || calls[0].args["body"] != "ab" {
		t.Fatalf("expected one send of %q, got %+v", "ab", calls)
	}
}

func TestFailedSubmitKeepsDraft(t *testing.T) {
	h := newHarness(t, "alice")
	h.backend.err = errors.New("mutation rejected")
	h.conv.SetDraft("keep me")

	if err := h.conv.Submit().Wait(context.Background()); err == nil {
		t.Fatal("expected submit error")
	}
	h.queue.Flush()

	if d := h.conv.Draft(); d != "keep me" {
		t.Fatalf("expected draft retained, got %q", d)
	}
}

func TestOverlappingSubmitIsRejected(t *testing.T) {
	h := newHarness(t, "alice")
	gate := make(chan struct{})
	h.backend.gate = gate
	h.conv.SetDraft("first")

	first := h.conv.Submit()
	h.queue.Flush()
	if !h.conv.Sending() {
		t.Fatal("expected sending flag while in flight")
	}

	second := h.conv.Submit()
	if err := second.Wait(context.Background()); !errors.Is(err, conversation.ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}

	close(gate)
	if err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if n := len(h.backend.mutateCalls()); n != 1 {
		t.Fatalf("expected one mutation, got %d", n)
	}
}

func TestDraftEditedDuringSendIsKept(t *testing.T) {
	h := newHarness(t, "alice")
	gate := make(chan struct{})
	h.backend.gate = gate
	h.conv.SetDraft("old")

	task := h.conv.Submit()
	h.queue.Flush()
	h.conv.SetDraft("newer text")
	h.queue.Flush()

	close(gate)
	if err := task.Wait(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.queue.Flush()

	if d := h.conv.Draft(); d != "newer text" {
		t.Fatalf("expected newer draft kept, got %q", d)
	}
}

func TestSeededNeverSubscribes(t *testing.T) {
	seed := []conversation.Message{
		{ID: "a", Author: "Foo", Body: "Hi!"},
		{ID: "b", Author: "Bar", Body: "Hey there!"},
	}
	h := newHarness(t, "iOS User", conversation.WithSeed(seed))

	if h.conv.Mode() != conversation.Seeded {
		t.Fatalf("expected seeded mode, got %v", h.conv.Mode())
	}
	lists, cancel := watchMessages(h.conv)
	defer cancel()
	if got := nextList(t, lists); !reflect.DeepEqual(got, seed) {
		t.Fatalf("expected seed replay, got %v", got)
	}

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if len(h.backend.queries) != 0 {
		t.Fatalf("seeded controller subscribed to %v", h.backend.queries)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	b := newFakeBackend()
	q := reactive.NewQueue()
	defer q.Close()
	c := conversation.NewController(b, q, "alice")
	c.Close()

	if err := c.Submit().Wait(context.Background()); !errors.Is(err, conversation.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubmitWithoutBackend(t *testing.T) {
	q := reactive.NewQueue()
	defer q.Close()
	c := conversation.NewController(nil, q, "preview", conversation.WithSeed(nil))
	defer c.Close()

	if err := c.Submit().Wait(context.Background()); !errors.Is(err, conversation.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
}

func TestSubmitOnClosedDispatcher(t *testing.T) {
	b := newFakeBackend()
	q := reactive.NewQueue()
	c := conversation.NewController(b, q, "alice")
	defer c.Close()
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Submit().Wait(ctx); !errors.Is(err, conversation.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if n := len(b.mutateCalls()); n != 0 {
		t.Fatalf("expected no mutation, got %d", n)
	}
}

func TestSubmitResolvesWhenDispatcherClosesMidFlight(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.gate = gate
	q := reactive.NewQueue()
	c := conversation.NewController(b, q, "alice")
	defer c.Close()

	c.SetDraft("hello")
	task := c.Submit()
	eventually(t, func() bool { return len(b.mutateCalls()) == 1 })

	q.Close()
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := task.Wait(ctx); !errors.Is(err, conversation.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if c.Sending() {
		t.Fatal("still sending after the dispatcher closed")
	}
}
