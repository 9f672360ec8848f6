package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/cricket/pkg/api"
	"github.com/go-go-golems/cricket/pkg/channel"
	"github.com/go-go-golems/cricket/pkg/messaging"
	"github.com/go-go-golems/cricket/pkg/session"
	"github.com/go-go-golems/cricket/pkg/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CRICKET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "cricket",
		Short:         "Terminal client for web messaging conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if cfg := v.GetString("config"); cfg != "" {
				v.SetConfigFile(cfg)
				if err := v.ReadInConfig(); err != nil {
					return errors.Wrap(err, "read config file")
				}
			}
			level, err := zerolog.ParseLevel(v.GetString("log-level"))
			if err != nil {
				return errors.Wrap(err, "parse log level")
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "info", "zerolog level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "config file (yaml)")

	root.AddCommand(newChatCmd(v))
	return root
}

func newChatCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start or resume a messaging conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runChat(cmd.Context(), v)
		},
	}
	cmd.Flags().String("base-url", "", "messaging API base URL")
	cmd.Flags().String("events-url", "", "event stream websocket URL (ws:// or wss://)")
	cmd.Flags().String("org-id", "", "organization id")
	cmd.Flags().String("deployment-name", "", "embedded service deployment name")
	cmd.Flags().String("db", "cricket.db", "sqlite database file for session continuity")
	cmd.Flags().String("redis-url", "", "redis URL for session continuity (overrides --db)")
	cmd.Flags().String("language", "en", "language of outbound messages")
	cmd.Flags().StringToString("attr", nil, "routing attribute for new conversations (key=value)")
	return cmd
}

func openStore(v *viper.Viper) (storage.Store, error) {
	if redisURL := v.GetString("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis URL")
		}
		deployment := v.GetString("deployment-name")
		return storage.Namespaced(storage.NewRedisStore(redis.NewClient(opts), 0), "cricket:"+deployment), nil
	}
	dsn, err := storage.SQLiteDSNForFile(v.GetString("db"))
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteStore(dsn)
}

func runChat(ctx context.Context, v *viper.Viper) error {
	if v.GetString("base-url") == "" || v.GetString("events-url") == "" {
		return errors.New("both --base-url and --events-url are required")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(v)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing store failed")
		}
	}()

	// The session is both the consumer of the API client and event channel
	// and their token source, so the collaborators pull the token through a
	// late-bound reference.
	var sess *session.Session

	apiClient, err := api.NewHTTPClient(api.HTTPClientOptions{
		BaseURL:        v.GetString("base-url"),
		OrganizationID: v.GetString("org-id"),
		DeploymentName: v.GetString("deployment-name"),
		Token:          func() string { return sess.Token() },
	})
	if err != nil {
		return err
	}
	ch, err := channel.NewWebSocket(channel.WebSocketOptions{
		URL:         v.GetString("events-url"),
		Token:       func() string { return sess.Token() },
		LastEventID: func() string { return sess.EventCursor() },
	})
	if err != nil {
		return err
	}

	attrs := messaging.RoutingAttributes{}
	for k, val := range v.GetStringMapString("attr") {
		attrs[k] = val
	}

	sess, err = session.New(session.Options{
		API:               apiClient,
		Channel:           ch,
		Storage:           store,
		RoutingAttributes: attrs,
		Language:          v.GetString("language"),
		Callbacks: session.Callbacks{
			ShowWindow: func(visible bool) {
				if !visible {
					fmt.Println("--- conversation unavailable ---")
				}
			},
			UIReady: func(bool) {
				fmt.Println("--- connected, type a message (/end to close, /quit to detach) ---")
			},
		},
	})
	if err != nil {
		return err
	}

	resume, err := session.HasPersistedCredential(ctx, store)
	if err != nil {
		return errors.Wrap(err, "check persisted credential")
	}
	if err := sess.Start(ctx, resume); err != nil {
		return errors.Wrap(err, "start session")
	}
	if sess.Status() != messaging.StatusOpened {
		fmt.Println("no conversation to resume, run again to start a new one")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return renderLoop(ctx, sess) })
	g.Go(func() error { return inputLoop(ctx, sess, stop) })

	err = g.Wait()
	sess.Cleanup(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// renderLoop prints ledger entries and typing transitions as they arrive.
func renderLoop(ctx context.Context, sess *session.Session) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	typingShown := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		snap := sess.Snapshot()
		for _, e := range snap.Entries[printed:] {
			printEntry(e)
		}
		printed = len(snap.Entries)
		if snap.ShowTypingIndicator != typingShown {
			typingShown = snap.ShowTypingIndicator
			if typingShown {
				fmt.Println("... agent is typing")
			}
		}
		if snap.Status == messaging.StatusClosed {
			fmt.Println("--- conversation closed ---")
			return context.Canceled
		}
	}
}

func printEntry(e messaging.Entry) {
	switch e.Type {
	case messaging.EntryTypeMessage:
		who := e.Sender.DisplayName
		if who == "" {
			who = string(e.Sender.Role)
		}
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format(time.Kitchen), who, e.Text)
	case messaging.EntryTypeParticipantChanged:
		fmt.Printf("[%s] * participants changed\n", e.Timestamp.Format(time.Kitchen))
	case messaging.EntryTypeRoutingResult:
		log.Debug().Str("entry_id", e.ID).Msg("routing result")
	}
}

// inputLoop reads lines from stdin and sends them as messages.
func inputLoop(ctx context.Context, sess *session.Session, stop func()) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			stop()
			return context.Canceled
		case line == "/end":
			if err := sess.EndConversation(ctx); err != nil {
				log.Warn().Err(err).Msg("ending conversation failed")
			}
			stop()
			return context.Canceled
		default:
			if err := sess.SendTextMessage(ctx, api.SendMessageRequest{Text: line}); err != nil {
				fmt.Println("!!! message not sent, it will be retried on the next prechat submission")
			}
		}
	}
	return errors.Wrap(scanner.Err(), "read stdin")
}
