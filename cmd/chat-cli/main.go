// ABOUTME: Command line client for chatd
// ABOUTME: Lists conversations and bots, and runs interactive streaming chat

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

type Conversation struct {
	ID        string `json:"id"`
	RoleType  string `json:"role_type"`
	BotName   string `json:"bot_name,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Message struct {
	ID          string   `json:"id,omitempty"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	TokensUsed  *int     `json:"tokens_used,omitempty"`
	ProcessLogs []string `json:"process_logs,omitempty"`
	Timestamp   string   `json:"timestamp"`
	Error       string   `json:"error,omitempty"`
}

type Bot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RoleType  string `json:"role_type"`
	IsDefault bool   `json:"is_default"`
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	server := flag.String("server", getEnv("TTC_CHAT_SERVER", "http://localhost:8080"), "chatd server URL")
	token := flag.String("token", os.Getenv("TTC_CHAT_TOKEN"), "Bearer token for bot management")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &client{
		baseURL: strings.TrimSuffix(*server, "/"),
		token:   *token,
		http:    &http.Client{},
	}

	var err error
	switch flag.Arg(0) {
	case "conversations":
		err = c.listConversations(ctx)
	case "new":
		err = c.newConversation(ctx, flag.Arg(1))
	case "chat":
		if flag.NArg() < 2 {
			err = fmt.Errorf("usage: chat-cli chat <conversation-id>")
		} else {
			err = c.chat(ctx, flag.Arg(1))
		}
	case "history":
		if flag.NArg() < 2 {
			err = fmt.Errorf("usage: chat-cli history <conversation-id>")
		} else {
			err = c.history(ctx, flag.Arg(1))
		}
	case "bots":
		err = c.listBots(ctx)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: chat-cli <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  conversations         List conversations")
	fmt.Println("  new [role_type]       Create a conversation")
	fmt.Println("  chat <id>             Interactive chat in a conversation")
	fmt.Println("  history <id>          Show conversation history")
	fmt.Println("  bots                  List configured bots")
}

func (c *client) listConversations(ctx context.Context) error {
	var convs []Conversation
	if err := c.getJSON(ctx, "/conversations", &convs); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tBOT\tUPDATED")
	for _, conv := range convs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", conv.ID, conv.RoleType, conv.BotName, conv.UpdatedAt)
	}
	return w.Flush()
}

func (c *client) newConversation(ctx context.Context, roleType string) error {
	body := map[string]string{}
	if roleType != "" {
		body["role_type"] = roleType
	}

	var conv Conversation
	if err := c.postJSON(ctx, "/conversations", body, &conv); err != nil {
		return err
	}

	fmt.Printf("Created conversation %s (role: %s)\n", color.CyanString(conv.ID), conv.RoleType)
	fmt.Printf("Start chatting with:\n  chat-cli chat %s\n", conv.ID)
	return nil
}

func (c *client) history(ctx context.Context, conversationID string) error {
	var msgs []Message
	if err := c.getJSON(ctx, "/chat/"+conversationID+"/history", &msgs); err != nil {
		return err
	}
	for _, msg := range msgs {
		printMessage(&msg)
	}
	return nil
}

func (c *client) listBots(ctx context.Context) error {
	var bots []Bot
	if err := c.getJSON(ctx, "/bots", &bots); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tDEFAULT")
	for _, bot := range bots {
		def := ""
		if bot.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", bot.ID, bot.Name, bot.RoleType, def)
	}
	return w.Flush()
}

// chat runs an interactive loop: read a line, stream the turn, repeat.
func (c *client) chat(ctx context.Context, conversationID string) error {
	var conv Conversation
	if err := c.getJSON(ctx, "/conversations/"+conversationID, &conv); err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("Conversation %s (role: %s). Ctrl+D to exit.\n", conv.ID, conv.RoleType)

	reader := bufio.NewReader(os.Stdin)
	prompt := color.New(color.FgGreen, color.Bold)
	for {
		prompt.Print("you> ")
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.streamTurn(ctx, conversationID, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// streamTurn posts one message and renders the NDJSON frames. Delta
// frames carry accumulated snapshots, so each frame redraws the line.
func (c *client) streamTurn(ctx context.Context, conversationID, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/"+conversationID, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	botLabel := color.New(color.FgCyan, color.Bold)
	var lastLen int
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame Message
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}

		switch {
		case frame.Error != "":
			fmt.Println()
			return fmt.Errorf("%s", frame.Error)
		case frame.Role == "user":
			// Our own echo; already on screen.
		case frame.ID != "":
			// Final persisted message: redraw and finish the line.
			fmt.Print("\r\033[K")
			botLabel.Print("bot> ")
			fmt.Println(frame.Content)
			if frame.TokensUsed != nil {
				color.New(color.FgHiBlack).Printf("     (%d tokens)\n", *frame.TokensUsed)
			}
			lastLen = 0
		default:
			// Accumulated snapshot: overwrite the current line.
			fmt.Print("\r\033[K")
			botLabel.Print("bot> ")
			fmt.Print(firstLine(frame.Content))
			lastLen = len(frame.Content)
		}
	}
	if lastLen > 0 {
		fmt.Println()
	}
	return scanner.Err()
}

// firstLine truncates multi-line snapshots for single-line redraw.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "…"
	}
	return s
}

func printMessage(msg *Message) {
	ts := msg.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
		ts = t.Local().Format("15:04:05")
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("[%s] ", ts)
	if msg.Role == "user" {
		color.New(color.FgGreen, color.Bold).Print("you> ")
	} else {
		color.New(color.FgCyan, color.Bold).Print(msg.Role + "> ")
	}
	fmt.Println(msg.Content)
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (status %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
