// Command chat is an interactive terminal client for the chat session
// engine. It wires the engine to a backend (by default the local dev
// server), reads lines from stdin, and prints the reconciled message
// list as it changes.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/api"
	"github.com/typow21/group-chat-gpt-frontend/internal/cipher"
	"github.com/typow21/group-chat-gpt-frontend/internal/config"
	"github.com/typow21/group-chat-gpt-frontend/internal/devserver"
	"github.com/typow21/group-chat-gpt-frontend/internal/keystore"
	"github.com/typow21/group-chat-gpt-frontend/internal/mention"
	"github.com/typow21/group-chat-gpt-frontend/internal/models"
	"github.com/typow21/group-chat-gpt-frontend/internal/push"
	"github.com/typow21/group-chat-gpt-frontend/internal/session"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.WarnLevel)

	userID := cfg.UserID
	if userID == "" {
		userID = uuid.New().String()
	}
	username := cfg.Username
	if username == "" {
		username = "anon-" + userID[:8]
	}
	identity := session.Identity{UserID: userID, Username: username}

	client := api.NewClient(cfg.Endpoint, cfg.Token, logger)

	var cache keystore.Cache
	if cfg.KeyCachePath != "" {
		sqliteCache, err := keystore.NewSQLiteCache(context.Background(), cfg.KeyCachePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open key cache")
		}
		defer sqliteCache.Close()
		cache = sqliteCache
	} else {
		cache = keystore.NewMemoryCache()
	}

	keys := keystore.New(cache, client, logger)
	codec := cipher.New(keys, logger)

	sess := session.New(identity, client, codec, client.EmitTyping, logger)
	defer sess.Close()
	signals := sess.Events()

	pushURL := cfg.PushURL
	if pushURL == "" {
		pushURL = cfg.Endpoint
	}
	subscriber := push.NewSubscriber(pushURL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomID := devserver.GlobalRoom
	if len(os.Args) > 1 {
		roomID = os.Args[1]
	}

	enterRoom := func(id string) context.CancelFunc {
		sess.SwitchRoom(ctx, id)
		roomCtx, stop := context.WithCancel(ctx)
		go func() {
			err := subscriber.Run(roomCtx, id, identity.UserID, func(env models.Envelope) {
				sess.HandlePush(roomCtx, env)
			})
			if err != nil && roomCtx.Err() == nil {
				sess.Disconnected(err)
			}
		}()
		return stop
	}

	stopPush := enterRoom(roomID)

	go func() {
		for sig := range signals {
			switch sig := sig.(type) {
			case session.RoomReady:
				fmt.Printf("-- joined %s (%s)\n", sess.RoomName(), sig.RoomID)
				for _, msg := range sess.Messages() {
					printMessage(msg, identity.UserID)
				}
			case session.RoomRenamed:
				fmt.Printf("-- room renamed to %s\n", sig.Name)
			case session.NotificationsRefresh:
				// A richer UI would refresh its notification badge here.
			case session.SendRollback:
				fmt.Printf("!! send failed (%v); draft restored: %q\n", sig.Err, sig.Draft)
			case session.Disconnected:
				fmt.Printf("!! push channel lost: %v\n", sig.Err)
			}
		}
	}()

	// Poll-print new messages and typing state. A real UI would render
	// from the snapshots directly.
	go func() {
		var lastCount int
		var lastTyping string
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			msgs := sess.Messages()
			for _, msg := range msgs[min(lastCount, len(msgs)):] {
				printMessage(msg, identity.UserID)
			}
			lastCount = len(msgs)

			names := typingNames(sess.Typing())
			if names != lastTyping {
				if names != "" {
					fmt.Printf("-- %s typing...\n", names)
				}
				lastTyping = names
			}
		}
	}()

	fmt.Printf("connected as %s; /room <id> switches rooms, /ai asks the bot, /quit exits\n", username)

	scanner := bufio.NewScanner(os.Stdin)
	draft := ""
	for scanner.Scan() {
		line := scanner.Text()
		sess.Keystroke()

		switch {
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/room "):
			stopPush()
			roomID = strings.TrimSpace(strings.TrimPrefix(line, "/room "))
			stopPush = enterRoom(roomID)
			continue
		case line == "/ai":
			draft = sess.AddAI(draft)
			fmt.Printf("draft: %q\n", draft)
			continue
		case line == "/who":
			for _, c := range sess.Candidates() {
				kind := "user"
				if c.Kind == mention.KindBot {
					kind = "bot"
				}
				fmt.Printf("  @%s (%s)\n", c.Name, kind)
			}
			continue
		}

		text := line
		if draft != "" {
			text = strings.TrimSpace(draft + " " + line)
			draft = ""
		}
		if err := sess.Send(ctx, text); err != nil {
			logger.Warn().Err(err).Msg("send failed")
		}
	}
}

func printMessage(msg models.Message, selfID string) {
	marker := "<"
	if msg.Sender == selfID {
		marker = ">"
		if msg.Pending {
			marker = "…"
		}
	}
	fmt.Printf("%s %s: %s\n", marker, msg.Sender, msg.Content)
}

func typingNames(entries []models.TypingEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.DisplayName
	}
	return strings.Join(names, ", ")
}
