package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"realtime-chat/internal/client"
	"realtime-chat/internal/config"
	"realtime-chat/internal/livesync"
	"realtime-chat/internal/models"
)

func init() {
	openCmd.Flags().Duration("typing-delay", livesync.DefaultTypingDelay, "how long the typing flag stays up after input (default from TYPING_TTL)")
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <chat-id>",
	Short: "Follow a chat live and send lines you type",
	Long: `Follow a chat live. Each line you enter is sent as a message.
The terminal only hands over whole lines, so others do not see you typing
while you compose. Enter /typing to show the indicator for --typing-delay.
Commands: /reply <message-id>, /search <text>, /react <message-id> <emoji>, /typing, /quit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := signedIn()
		if err != nil {
			return err
		}
		sess, err := startSession(ctx, c)
		if err != nil {
			return err
		}
		defer c.Close()
		defer sess.Stop()

		chatID := args[0]
		if _, ok := sess.Roster().Chat(chatID); !ok {
			return fmt.Errorf("chat %s not found in your chat list", chatID)
		}
		delay, _ := cmd.Flags().GetDuration("typing-delay")
		if !cmd.Flags().Changed("typing-delay") {
			if delay, err = config.TypingDelay(); err != nil {
				return err
			}
		}
		return runConversation(ctx, c, sess, chatID, delay)
	},
}

// view renders snapshots of one conversation to the terminal.
type view struct {
	sess   *livesync.Session
	chatID string

	mu      sync.Mutex
	printed map[string]bool
	typing  string
}

func (v *view) render(u livesync.Update) {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := time.Now()
	for _, group := range livesync.GroupByDay(u.Messages, now) {
		header := false
		for _, m := range group.Messages {
			if v.printed[m.ID] {
				continue
			}
			if !header {
				fmt.Printf("--- %s ---\n", group.Label)
				header = true
			}
			v.printed[m.ID] = true
			fmt.Println(v.line(m))
		}
	}
}

func (v *view) line(m models.Message) string {
	name := v.sess.Roster().DisplayName(v.chatID, m.SenderID)
	ts := m.CreatedAt.Local().Format("15:04")
	var body string
	switch {
	case m.IsDeleted:
		body = "(message deleted)"
	case m.Type == models.MessageTypePoll && m.Poll != nil:
		opts := make([]string, 0, len(m.Poll.Options))
		for _, o := range m.Poll.Options {
			opts = append(opts, fmt.Sprintf("%s (%d)", o.Text, len(o.Votes)))
		}
		body = "📊 " + m.Poll.Question + ": " + strings.Join(opts, ", ")
	case m.Type == models.MessageTypeImage:
		body = "📷 " + m.ImageURL
	case m.Type == models.MessageTypeAudio:
		body = "🎤 " + m.AudioURL
	default:
		body = m.Text
	}
	if m.ReplyTo != nil {
		body = fmt.Sprintf("> %s: %s\n        %s", m.ReplyTo.SenderName, m.ReplyTo.Text, body)
	}
	if m.IsForwarded {
		body = "(forwarded) " + body
	}
	if m.EditedAt != nil && !m.IsDeleted {
		body += " (edited)"
	}
	return fmt.Sprintf("[%s] %s %s: %s", ts, m.ID, name, body)
}

// showTyping prints the indicator line when it changes.
func (v *view) showTyping(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if text == v.typing {
		return
	}
	v.typing = text
	if text != "" {
		fmt.Println("... " + text)
	}
}

func runConversation(ctx context.Context, c *client.Client, sess *livesync.Session, chatID string, delay time.Duration) error {
	v := &view{sess: sess, chatID: chatID, printed: map[string]bool{}}
	conv, err := sess.Open(ctx, chatID, c, livesync.ConversationOptions{
		OnUpdate: v.render,
		OnIncoming: func(models.Message) {
			fmt.Print("\a")
		},
	})
	if err != nil {
		return err
	}
	defer conv.Stop()

	indicator := livesync.NewTypingIndicator(chatID, sess.Identity().UID, c)
	if err := indicator.Start(ctx); err != nil {
		return err
	}
	defer indicator.Stop()

	typing := livesync.NewTyping(chatID, c, delay)
	defer typing.Stop(context.WithoutCancel(ctx))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return fmt.Errorf("connection closed")
		case <-ticker.C:
			v.showTyping(livesync.IndicatorText(indicator.Typers(), func(uid string) string {
				return sess.Roster().DisplayName(chatID, uid)
			}))
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, c, conv, typing, v, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, c *client.Client, conv *livesync.Conversation, typing *livesync.Typing, v *view, line string) bool {
	line = strings.TrimSpace(line)
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false
	case "/quit":
		return true
	case "/reply":
		conv.ReplyTo(strings.TrimSpace(rest))
		fmt.Println("Replying to", rest)
		return false
	case "/search":
		for _, m := range conv.Search(rest) {
			fmt.Println(v.line(m))
		}
		return false
	case "/typing":
		typing.Keystroke(ctx)
		return false
	case "/react":
		id, emoji, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if _, err := c.React(ctx, conv.ChatID(), id, strings.TrimSpace(emoji)); err != nil {
			fmt.Fprintln(os.Stderr, "react failed:", err)
		}
		return false
	}

	conv.SetCompose(line)
	if _, err := conv.Send(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "send failed, message kept:", err)
	}
	typing.Stop(ctx)
	return false
}
