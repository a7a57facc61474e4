package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chattour/internal/backend"
	"chattour/internal/conversation"
)

var (
	baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
	userCount = flag.Int("users", 100, "concurrent clients") // Start small, every send fans out to every client.
	msgCount  = flag.Int("messages", 20, "messages per client")
)

type stats struct {
	sent      atomic.Int64
	failed    atomic.Int64
	snapshots atomic.Int64
}

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	log.Info().Int("users", *userCount).Int("messages", *msgCount).Msg("starting load test")
	start := time.Now()

	var (
		wg sync.WaitGroup
		st stats
	)
	for i := 0; i < *userCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runUser(log, id, &st)
		}(i)
	}
	wg.Wait()

	log.Info().
		Int64("sent", st.sent.Load()).
		Int64("failed", st.failed.Load()).
		Int64("snapshots", st.snapshots.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("load test complete")
}

func runUser(log zerolog.Logger, id int, st *stats) {
	username := fmt.Sprintf("u_%d", id)
	log = log.With().Str("user", username).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := backend.New(backend.Options{URL: *baseURL}, zerolog.Nop())
	client.Start(ctx)
	defer client.Close()

	if err := authenticate(ctx, client, username, "password123"); err != nil {
		log.Error().Err(err).Msg("login failed")
		return
	}

	// Count the snapshots pushed to this client while everyone sends.
	updates := client.Subscribe(ctx, conversation.ListQuery)
	go func() {
		for u := range updates {
			if u.Err == nil {
				st.snapshots.Add(1)
			}
		}
	}()

	spamChat(ctx, client, username, st)
	log.Info().Int("messages", *msgCount).Msg("finished sending")
}

// authenticate registers (ignoring an existing account) and logs in.
func authenticate(ctx context.Context, client *backend.Client, username, password string) error {
	_ = client.Register(ctx, username, password, username)
	client.SetCredentials(username, password)
	return client.Login(ctx)
}

func spamChat(ctx context.Context, client *backend.Client, username string, st *stats) {
	for i := 0; i < *msgCount; i++ {
		args := map[string]string{
			"author": username,
			"body":   fmt.Sprintf("LoadTest Msg %d from %s", i, username),
		}
		_, err := client.Mutate(ctx, conversation.SendCommand, args)
		switch {
		case err == nil:
			st.sent.Add(1)
		case errors.Is(err, backend.ErrNotConnected), errors.Is(err, backend.ErrDisconnected):
			// The link dropped; give the client a moment to redial and retry once.
			time.Sleep(200 * time.Millisecond)
			if _, err := client.Mutate(ctx, conversation.SendCommand, args); err != nil {
				st.failed.Add(1)
			} else {
				st.sent.Add(1)
			}
		default:
			st.failed.Add(1)
		}
		if ctx.Err() != nil {
			return
		}
		// Small sleep to prevent instant localhost bottleneck.
		time.Sleep(10 * time.Millisecond)
	}
}
