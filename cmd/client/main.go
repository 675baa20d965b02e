// roomchat CLI - command line and terminal client for roomchat
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomchat/internal/client"
	"github.com/eldtechnologies/roomchat/internal/config"
	"github.com/eldtechnologies/roomchat/internal/models"
	"github.com/eldtechnologies/roomchat/internal/session"
	"github.com/eldtechnologies/roomchat/internal/transport"
	"github.com/eldtechnologies/roomchat/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadClient()
	exitOnError(err)

	api := client.New(cfg.APIURL, cfg.HTTPTimeout)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := api.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "rooms":
		rooms, err := api.ListRooms(ctx)
		exitOnError(err)
		for _, r := range rooms {
			fmt.Printf("  %d  %s\n", r.ID, r.Name)
		}

	case "create":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: roomchat create <name>")
			os.Exit(1)
		}
		room, err := api.CreateRoom(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("Created room %d: %s\n", room.ID, room.Name)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: roomchat read <room>")
			os.Exit(1)
		}
		room, err := resolveRoom(ctx, api, os.Args[2])
		exitOnError(err)
		msgs, err := api.History(ctx, strconv.FormatInt(room.ID, 10))
		exitOnError(err)
		for _, msg := range msgs {
			ts := msg.Timestamp.Local().Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, msg.User, msg.Content)
		}

	case "post":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: roomchat post <room> <message>")
			os.Exit(1)
		}
		room, err := resolveRoom(ctx, api, os.Args[2])
		exitOnError(err)
		user := models.NormalizeUser(cfg.User)
		msg, err := api.PostMessage(ctx, strconv.FormatInt(room.ID, 10), user, strings.Join(os.Args[3:], " "))
		exitOnError(err)
		fmt.Printf("Posted: %d\n", msg.ID)

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: roomchat chat <room> [user]")
			os.Exit(1)
		}
		user := cfg.User
		if len(os.Args) > 3 {
			user = os.Args[3]
		}
		exitOnError(chat(ctx, cfg, api, os.Args[2], user))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat runs the terminal UI for one room until the user leaves.
func chat(ctx context.Context, cfg *config.ClientConfig, api *client.Client, ref, user string) error {
	room, err := resolveRoom(ctx, api, ref)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	logger, closeLog, err := fileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	sess := session.New(api, transport.NewAdapter(cfg.WSURL, logger), session.Options{
		User:      user,
		Tolerance: cfg.DedupWindow,
	}, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	roomID := strconv.FormatInt(room.ID, 10)
	logger.Info().Str("room", roomID).Str("user", sess.User()).Msg("opening room")
	sess.Open(ctx, roomID)
	defer sess.Leave()

	program := tea.NewProgram(tui.New(sess, room.Name), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

// resolveRoom accepts a numeric room id or a room name.
func resolveRoom(ctx context.Context, api *client.Client, ref string) (*client.Room, error) {
	rooms, err := api.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	id, idErr := strconv.ParseInt(ref, 10, 64)
	for i := range rooms {
		if (idErr == nil && rooms[i].ID == id) || rooms[i].Name == ref {
			return &rooms[i], nil
		}
	}
	return nil, fmt.Errorf("room %q not found", ref)
}

func fileLogger(cfg *config.ClientConfig) (zerolog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	logger := zerolog.New(f).Level(cfg.LogLevel).With().Timestamp().Logger()
	return logger, func() { f.Close() }, nil
}

func usage() {
	fmt.Println(`roomchat - room-based chat client

Usage: roomchat <command> [options]

Commands:
  rooms                    List rooms
  create <name>            Create a room
  read <room>              Print a room's history
  post <room> <message>    Post a message to a room
  chat <room> [user]       Open a room in the terminal UI
  health                   Check server health

Rooms may be given by id or by name.

Environment:
  CHAT_API_URL        Server URL (default: http://127.0.0.1:8000)
  CHAT_WS_URL         Live channel URL (default: derived from CHAT_API_URL)
  CHAT_USER           Display name (default: Anonymous)
  CHAT_DEDUP_WINDOW   Echo/record match window (default: 10s)
  CHAT_CONFIG         Config directory (default: ~/.roomchat)
  CHAT_LOG_FILE       Log file for chat (default: $CHAT_CONFIG/client.log)
  LOG_LEVEL           Log level (default: info)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
