package chat_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chattour/internal/chat"
)

func TestListQueryStartsEmpty(t *testing.T) {
	f := chat.NewFunctions(chat.NewMemoryStore(), chat.NewMemoryNotifier(), 10)

	raw, err := f.Query(context.Background(), chat.ListQuery)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(raw))
}

func TestSendPersistsAndPublishes(t *testing.T) {
	store := chat.NewMemoryStore()
	notifier := chat.NewMemoryNotifier()
	f := chat.NewFunctions(store, notifier, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	topics := notifier.Subscribe(ctx)

	raw, err := f.Mutate(ctx, chat.Caller{}, chat.SendCommand, map[string]string{"author": " Ada ", "body": "hello"})
	require.NoError(t, err)

	var created chat.Message
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Ada", created.Author)
	require.Equal(t, "hello", created.Body)

	select {
	case topic := <-topics:
		require.Equal(t, chat.TopicMessages, topic)
	case <-time.After(time.Second):
		t.Fatal("no invalidation published")
	}

	msgs, err := store.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, created.ID, msgs[0].ID)
}

func TestSendRequiresAuthorAndBody(t *testing.T) {
	f := chat.NewFunctions(chat.NewMemoryStore(), chat.NewMemoryNotifier(), 10)

	tests := []struct {
		name string
		args map[string]string
	}{
		{"missing author", map[string]string{"body": "hi"}},
		{"missing body", map[string]string{"author": "Ada"}},
		{"no args", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Mutate(context.Background(), chat.Caller{}, chat.SendCommand, tt.args)
			require.ErrorIs(t, err, chat.ErrMissingArgument)
		})
	}
}

func TestEmptyBodyIsAllowed(t *testing.T) {
	f := chat.NewFunctions(chat.NewMemoryStore(), chat.NewMemoryNotifier(), 10)

	_, err := f.Mutate(context.Background(), chat.Caller{}, chat.SendCommand, map[string]string{"author": "Ada", "body": ""})
	require.NoError(t, err)
}

func TestUnknownFunctions(t *testing.T) {
	f := chat.NewFunctions(chat.NewMemoryStore(), chat.NewMemoryNotifier(), 10)

	require.False(t, f.HasQuery("messages:nope"))
	_, err := f.Query(context.Background(), "messages:nope")
	require.ErrorIs(t, err, chat.ErrUnknownQuery)

	_, err = f.Mutate(context.Background(), chat.Caller{}, "messages:nope", nil)
	require.ErrorIs(t, err, chat.ErrUnknownCommand)
}

func TestListQueryReturnsNewestInOrder(t *testing.T) {
	store := chat.NewMemoryStore()
	f := chat.NewFunctions(store, chat.NewMemoryNotifier(), 2)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		_, err := f.Mutate(ctx, chat.Caller{}, chat.SendCommand, map[string]string{"author": "Ada", "body": body})
		require.NoError(t, err)
	}

	raw, err := f.Query(ctx, chat.ListQuery)
	require.NoError(t, err)
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(raw, &msgs))
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[0].Body)
	require.Equal(t, "three", msgs[1].Body)
}

func TestMemoryNotifierDropsListenerOnCancel(t *testing.T) {
	n := chat.NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	n.Subscribe(ctx)
	require.Equal(t, 1, n.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return n.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, n.Publish(context.Background(), chat.TopicMessages))
}
