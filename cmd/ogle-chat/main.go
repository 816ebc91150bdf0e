// ABOUTME: Interactive terminal client for the ogle marketplace chat.
// ABOUTME: Wires the connection, synchronizer, poller and session together.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/ogleapp/chat/internal/chat"
	"github.com/ogleapp/chat/internal/config"
	"github.com/ogleapp/chat/internal/rest"
	"github.com/ogleapp/chat/internal/session"
	"github.com/ogleapp/chat/internal/wsconn"
)

// Version is set at build time.
var version = "dev"

var (
	ownStyle     = color.New(color.FgGreen)
	otherStyle   = color.New(color.FgCyan)
	pendingStyle = color.New(color.FgHiBlack)
	systemStyle  = color.New(color.FgYellow)
)

// getToken returns the bearer token from the OGLE_TOKEN env var or the
// ~/.config/ogle/token file.
func getToken() string {
	if token := os.Getenv("OGLE_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "ogle", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// getConfigPath returns the path to the client config file.
// Priority: OGLE_CHAT_CONFIG env var > XDG_CONFIG_HOME/ogle/chat.yaml >
// ~/.config/ogle/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OGLE_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ogle", "chat.yaml")
}

// setupLogging builds the process logger from config.
func setupLogging(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	configPath := flag.String("config", getConfigPath(), "Path to the client config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ogle-chat %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg.Logging)
	slog.SetDefault(logger)

	token := getToken()
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: no credential (set OGLE_TOKEN or ~/.config/ogle/token)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, token, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// run wires the components, logs in and drives the interactive loop.
func run(ctx context.Context, cfg *config.Config, token string, logger *slog.Logger) error {
	conn := wsconn.NewManager(wsconn.Config{
		URL:            cfg.Server.WSURL,
		InboundQueue:   cfg.Chat.InboundQueue,
		AcceptVersion:  cfg.Chat.AcceptVersion,
		HeartBeat:      cfg.Chat.HeartBeat,
		Reconnect:      cfg.Reconnect.Enabled,
		ReconnectDelay: cfg.Reconnect.Delay,
	}, logger)

	store := session.NewStore()
	hub := chat.NewHub(logger)
	defer hub.Close()

	var sess *session.Session
	api := rest.NewClient(cfg.Server.APIBaseURL, store, func() {
		if sess != nil {
			sess.Invalidate()
		}
	}, logger)

	sync := chat.NewSynchronizer(chat.Config{
		SendDestination: cfg.Chat.SendDestination,
		PageSize:        cfg.Chat.PageSize,
	}, api, conn, hub, logger)

	poller := chat.NewPoller(sync, hub,
		cfg.Discovery.InitialDelay,
		cfg.Discovery.RetryDelay,
		cfg.Discovery.MaxAttempts,
		logger)
	sync.SetDiscoverer(poller)

	sess = session.New(store, conn, sync, logger)
	sess.SetAuthRequiredHandler(func() {
		systemStyle.Println("* credential rejected, please log in again")
	})

	if err := sess.Login(ctx, token); err != nil {
		return err
	}
	defer sess.Logout()

	go watchStates(ctx, conn)
	go watchUpdates(ctx, hub, store, sync)

	fmt.Printf("ogle-chat %s connected to %s as %s\n", version, cfg.Server.WSURL, store.UserID())
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	return interact(ctx, sync)
}

// watchStates prints connection state banners.
func watchStates(ctx context.Context, conn *wsconn.Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-conn.States():
			if !ok {
				return
			}
			systemStyle.Printf("* connection %s\n", s.String())
		}
	}
}

// watchUpdates renders state changes pushed by the synchronizer.
func watchUpdates(ctx context.Context, hub *chat.Hub, store *session.Store, sync *chat.Synchronizer) {
	messages, _ := hub.Subscribe(ctx, chat.TopicMessages)
	discovery, _ := hub.Subscribe(ctx, chat.TopicDiscovery)

	var shown int
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-messages:
			if !ok {
				return
			}
			mu, isMsg := u.(chat.MessagesUpdated)
			if !isMsg {
				continue
			}
			// Print only the tail the view has not rendered yet; a
			// shrinking list means another conversation was opened.
			if len(mu.Messages) < shown {
				shown = 0
				fmt.Println("---")
			}
			for _, m := range mu.Messages[shown:] {
				printMessage(m)
			}
			shown = len(mu.Messages)
		case u, ok := <-discovery:
			if !ok {
				return
			}
			switch v := u.(type) {
			case chat.ConversationResolved:
				systemStyle.Printf("* conversation %d created\n", v.ConversationID)
				if err := sync.OpenConversation(ctx, v.ConversationID); err != nil {
					systemStyle.Printf("* %v\n", err)
				}
			case chat.DiscoveryFailed:
				systemStyle.Printf("* could not find the new conversation (%v)\n", v.Err)
			}
		}
	}
}

// printMessage renders one message line.
func printMessage(m *chat.Message) {
	ts := m.Timestamp.Format("15:04")
	switch {
	case m.Pending():
		pendingStyle.Printf("%s you: %s (sending...)\n", ts, m.Content)
	case m.Own:
		ownStyle.Printf("%s you: %s\n", ts, m.Content)
	default:
		otherStyle.Printf("%s %s: %s\n", ts, m.SenderName, m.Content)
	}
}

// interact runs the command loop until EOF, /quit or cancellation.
func interact(ctx context.Context, sync *chat.Synchronizer) error {
	scanner := newSignalAwareScanner(os.Stdin)

	for {
		fmt.Print("> ")

		input, err := scanner.Line(ctx)
		if err == io.EOF || err == context.Canceled {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/help":
			printHelp()

		case input == "/conversations" || input == "/c":
			if err := sync.LoadConversations(ctx); err != nil {
				fmt.Printf("[error] %v\n", err)
				continue
			}
			printConversations(sync.Conversations())

		case strings.HasPrefix(input, "/open"):
			arg := strings.TrimSpace(strings.TrimPrefix(input, "/open"))
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				fmt.Println("Usage: /open <conversation-id>")
				continue
			}
			if err := sync.OpenConversation(ctx, id); err != nil {
				fmt.Printf("[error] %v\n", err)
			}

		case strings.HasPrefix(input, "/new"):
			args := strings.Fields(strings.TrimPrefix(input, "/new"))
			if len(args) != 2 {
				fmt.Println("Usage: /new <listing-id> <seller-id>")
				continue
			}
			openNew(ctx, sync, args[0], args[1])

		case input == "/close":
			sync.CloseConversation()
			fmt.Println("Conversation closed")

		default:
			sendText(ctx, sync, input)
		}
		fmt.Println()
	}
}

// openNew starts a thread for a listing, reusing an existing conversation
// when the server already has one for the pair.
func openNew(ctx context.Context, sync *chat.Synchronizer, listingID, sellerID string) {
	if err := sync.LoadConversations(ctx); err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	if conv, ok := sync.Find(listingID, sellerID); ok {
		if err := sync.OpenConversation(ctx, conv.ID); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
		return
	}
	sync.OpenNewConversation(listingID, sellerID)
	fmt.Printf("New conversation about listing %s. Your first message creates it.\n", listingID)
}

// sendText sends a chat message into the open conversation or the open
// provisional thread.
func sendText(ctx context.Context, sync *chat.Synchronizer, content string) {
	var listingID, recipientID string
	if conv := sync.Current(); conv != nil {
		if conv.Listing != nil {
			listingID = conv.Listing.PublicID
		}
		recipientID = conv.Counterpart()
	} else if l, c, ok := sync.Provisional(); ok {
		listingID, recipientID = l, c
	} else {
		fmt.Println("No open conversation. Use /open or /new first.")
		return
	}

	if err := sync.Send(ctx, listingID, recipientID, content); err != nil {
		fmt.Printf("[error] %v\n", err)
	}
}

// printConversations renders the conversation list.
func printConversations(convs []*chat.Conversation) {
	if len(convs) == 0 {
		fmt.Println("No conversations")
		return
	}
	for _, c := range convs {
		title := "(listing)"
		if c.Listing != nil && c.Listing.Title != "" {
			title = c.Listing.Title
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" [%d unread]", c.UnreadCount)
		}
		fmt.Printf("  %d: %s - %s%s\n", c.ID, title, c.CounterpartName, unread)
		if c.LastMessage != "" {
			fmt.Printf("      %s\n", c.LastMessage)
		}
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations          List your conversations")
	fmt.Println("  /open <id>              Open a conversation")
	fmt.Println("  /new <listing> <seller> Start a conversation about a listing")
	fmt.Println("  /close                  Close the open conversation")
	fmt.Println("  /help                   Show this help")
	fmt.Println("  /quit                   Exit")
}
