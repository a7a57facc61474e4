package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"chattour/internal/backend"
	"chattour/internal/config"
	"chattour/internal/conversation"
	"chattour/internal/reactive"
	"chattour/internal/session"
	"chattour/internal/tui"
)

// previewMessages is the fixed conversation shown by -preview.
var previewMessages = []conversation.Message{
	{ID: "a", Author: "Foo", Body: "Hi!"},
	{ID: "b", Author: "Bar", Body: "Hey there!"},
}

const previewAuthor = "iOS User"

func main() {
	preview := flag.Bool("preview", false, "show a fixed conversation without a server")
	register := flag.Bool("register", false, "create an account and exit")
	username := flag.String("user", "", "username for -register")
	password := flag.String("password", "", "password for -register")
	name := flag.String("name", "", "display name for -register")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	queue := reactive.NewQueue()
	defer queue.Close()

	if *preview {
		conv := conversation.NewController(nil, queue, previewAuthor, conversation.WithSeed(previewMessages))
		m := tui.New(tui.Options{
			Author:          previewAuthor,
			NewConversation: func(string) tui.Conversation { return conv },
			Logger:          logger,
		})
		if err := run(context.Background(), m); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	client := backend.New(backend.Options{URL: cfg.Server.URL}, logger)

	if *register {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Register(ctx, *username, *password, *name); err != nil {
			fmt.Fprintf(os.Stderr, "register: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("registered %s\n", *username)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client.Start(ctx)
	defer client.Close()

	opts := tui.Options{
		Author:   cfg.Chat.Author,
		Username: cfg.Auth.Username,
		Logger:   logger,
		NewConversation: func(author string) tui.Conversation {
			return conversation.NewController(client, queue, author, conversation.WithLogger(logger))
		},
	}
	if cfg.Auth.Enabled {
		sess := session.NewController(client, queue, session.WithLogger(logger))
		defer sess.Close()
		opts.Session = sess
		opts.Credentials = client.SetCredentials
	}

	logger.Info().Str("server", cfg.Server.URL).Bool("auth", cfg.Auth.Enabled).Msg("starting client")
	if err := run(ctx, tui.New(opts)); err != nil {
		logger.Error().Err(err).Msg("program exited")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, m tui.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(tui.Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// newLogger writes to a file; the terminal belongs to the UI.
func newLogger(cfg config.LogConfig) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return zerolog.Nop(), func() {}, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}

	logger := zerolog.New(f).Level(level).With().Timestamp().Logger()
	return logger, func() { f.Close() }, nil
}
