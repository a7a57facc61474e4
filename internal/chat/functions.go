package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ListQuery   = "messages:list"
	SendCommand = "messages:send"

	// TopicMessages is published after every write to the messages table.
	TopicMessages = "messages"
)

var (
	ErrUnknownQuery    = errors.New("unknown query")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
)

type QueryFunc func(ctx context.Context) (any, error)

type MutationFunc func(ctx context.Context, caller Caller, args map[string]string) (any, error)

// Functions is the set of named queries and mutations the server exposes.
type Functions struct {
	queries   map[string]QueryFunc
	mutations map[string]MutationFunc
	notifier  Notifier
}

// NewFunctions registers messages:list and messages:send over store.
// historyLimit bounds the list query.
func NewFunctions(store Store, notifier Notifier, historyLimit int) *Functions {
	f := &Functions{
		queries:   make(map[string]QueryFunc),
		mutations: make(map[string]MutationFunc),
		notifier:  notifier,
	}

	f.queries[ListQuery] = func(ctx context.Context) (any, error) {
		return store.ListMessages(ctx, historyLimit)
	}

	f.mutations[SendCommand] = func(ctx context.Context, _ Caller, args map[string]string) (any, error) {
		author, ok := args["author"]
		if !ok {
			return nil, fmt.Errorf("%w: author", ErrMissingArgument)
		}
		body, ok := args["body"]
		if !ok {
			return nil, fmt.Errorf("%w: body", ErrMissingArgument)
		}

		msg := &Message{
			ID:        uuid.NewString(),
			Author:    strings.TrimSpace(author),
			Body:      body,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("save message: %w", err)
		}
		if err := notifier.Publish(ctx, TopicMessages); err != nil {
			return nil, fmt.Errorf("publish invalidation: %w", err)
		}
		return msg, nil
	}

	return f
}

// HasQuery reports whether name is a registered query.
func (f *Functions) HasQuery(name string) bool {
	_, ok := f.queries[name]
	return ok
}

// Query evaluates a registered query and encodes its result.
func (f *Functions) Query(ctx context.Context, name string) (json.RawMessage, error) {
	q, ok := f.queries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	v, err := q(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Mutate runs a registered mutation and encodes its result.
func (f *Functions) Mutate(ctx context.Context, caller Caller, name string, args map[string]string) (json.RawMessage, error) {
	m, ok := f.mutations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	v, err := m(ctx, caller, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
