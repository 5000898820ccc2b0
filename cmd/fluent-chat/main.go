// ABOUTME: Terminal chat client for practicing a conversation through fluent-gateway
// ABOUTME: Logs in over HTTP, then sends and prints turns over the WebSocket relay

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// getTokenPath returns ~/.config/fluent/token (honoring XDG_CONFIG_HOME).
func getTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "fluent", "token")
}

// getToken returns the JWT from FLUENT_TOKEN or the token file.
func getToken() string {
	if token := os.Getenv("FLUENT_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(getTokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// outboundFrame is what the relay broadcasts for every persisted message.
type outboundFrame struct {
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
	Error          string `json:"error,omitempty"`
	Code           string `json:"code,omitempty"`
}

// inboundFrame is one user turn.
type inboundFrame struct {
	Text   string `json:"text"`
	TurnID string `json:"turn_id,omitempty"`
}

func main() {
	server := flag.String("server", "http://localhost:8000", "Gateway server URL")
	convID := flag.String("conversation", "", "Conversation ID to join (required)")
	email := flag.String("email", "", "Log in with this email before connecting")
	password := flag.String("password", "", "Password for -email")
	flag.Parse()

	if *convID == "" {
		fmt.Fprintln(os.Stderr, "Usage: fluent-chat -conversation ID [-server URL] [-email E -password P]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	token := getToken()
	if *email != "" {
		var err error
		token, err = login(ctx, *server, *email, *password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if token != "" {
			if err := saveToken(token); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
	}

	if err := run(ctx, *server, *convID, token, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// login posts credentials and returns the issued token, which is empty when
// the gateway runs without auth.
func login(ctx context.Context, server, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Detail string `json:"detail"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", out.Detail)
	}
	return out.Token, nil
}

func saveToken(token string) error {
	path := getTokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// chatURL converts the HTTP server URL into the relay WebSocket URL.
func chatURL(server, convID, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat/" + convID
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func run(ctx context.Context, server, convID, token string, in io.Reader, out io.Writer) error {
	wsURL, err := chatURL(server, convID, token)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connecting: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	fmt.Fprintf(out, "fluent-chat joined %s on %s\n", convID, server)
	fmt.Fprintln(out, "Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Fprintln(out)

	readDone := make(chan error, 1)
	go func() { readDone <- readFrames(conn, out) }()

	done := make(chan struct{})
	defer close(done)
	lines := scanLines(in, done)

	for {
		select {
		case <-ctx.Done():
			return closeConn(conn)
		case err := <-readDone:
			return err
		case line, ok := <-lines:
			if !ok {
				return closeConn(conn)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch line {
			case "/quit", "/exit", "/q":
				return closeConn(conn)
			case "/help":
				printHelp(out)
				continue
			case "/history":
				if err := fetchHistory(ctx, out, server, convID, token); err != nil {
					fmt.Fprintf(out, "[error] %v\n", err)
				}
				continue
			}

			frame := inboundFrame{Text: line, TurnID: uuid.NewString()}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(frame); err != nil {
				return fmt.Errorf("sending: %w", err)
			}
		}
	}
}

// scanLines feeds lines from in until EOF or until done is closed.
func scanLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// closeConn sends a close frame so the relay ends the session cleanly.
func closeConn(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return nil
}

// readFrames prints frames until the connection closes.
func readFrames(conn *websocket.Conn, out io.Writer) error {
	for {
		var f outboundFrame
		if err := conn.ReadJSON(&f); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return fmt.Errorf("reading: %w", err)
		}
		fmt.Fprintln(out, formatFrame(f))
	}
}

// formatFrame renders one frame for the terminal.
func formatFrame(f outboundFrame) string {
	if f.Error != "" {
		return color.RedString("[%s] %s", f.Code, f.Error)
	}
	clock := f.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, f.Timestamp); err == nil {
		clock = t.Local().Format("15:04:05")
	}
	switch f.Sender {
	case "user":
		return color.HiBlackString(clock) + " " + color.BlueString("you") + "  " + f.Text
	case "ai":
		return color.HiBlackString(clock) + " " + color.GreenString("tutor") + " " + f.Text
	default:
		return clock + " " + f.Sender + " " + f.Text
	}
}

// printHelp displays available commands.
func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /history       Show this conversation's messages")
	fmt.Fprintln(out, "  /help          Show this help")
	fmt.Fprintln(out, "  /quit          Exit")
}

// fetchHistory prints the stored messages of convID.
func fetchHistory(ctx context.Context, out io.Writer, server, convID, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/messages/"+url.PathEscape(convID), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var msgs []outboundFrame
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages yet")
		return nil
	}

	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, m := range msgs {
		fmt.Fprintln(out, formatFrame(m))
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))
	return nil
}
