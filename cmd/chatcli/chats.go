package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/client"
	"realtime-chat/internal/livesync"
	"realtime-chat/internal/models"
)

const syncTimeout = 5 * time.Second

func init() {
	chatsCmd.Flags().Bool("archived", false, "list archived chats instead")
	rootCmd.AddCommand(chatsCmd, sendCmd)
}

// startSession connects the listener and waits for the first roster and
// user snapshots.
func startSession(ctx context.Context, c *client.Client) (*livesync.Session, error) {
	token, err := store.Token()
	if err != nil {
		return nil, err
	}
	id, err := client.IdentityFromToken(token)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	sess := livesync.NewSession(id, c)
	ready := make(chan struct{}, 2)
	sess.Roster().OnChange(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	if err := sess.Start(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	timeout := time.After(syncTimeout)
	for got := 0; got < 2; got++ {
		select {
		case <-ready:
			continue
		case <-timeout:
			err = errors.New("timed out waiting for chat list")
		case <-ctx.Done():
			err = ctx.Err()
		}
		sess.Stop()
		_ = c.Close()
		return nil, err
	}
	return sess, nil
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your chats, newest activity first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedIn()
		if err != nil {
			return err
		}
		sess, err := startSession(cmd.Context(), c)
		if err != nil {
			return err
		}
		defer c.Close()
		defer sess.Stop()

		active, archived := sess.Roster().Split()
		list := active
		if showArchived, _ := cmd.Flags().GetBool("archived"); showArchived {
			list = archived
		}
		printChats(sess, list, time.Now())
		return nil
	},
}

func printChats(sess *livesync.Session, chats []models.Chat, now time.Time) {
	roster, presence := sess.Roster(), sess.Presence()
	uid := sess.Identity().UID

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAT\tSTATUS\tLAST MESSAGE")
	for _, chat := range chats {
		var flags []string
		if chatops.Contains(chat.PinnedBy, uid) {
			flags = append(flags, "pinned")
		}
		if chatops.Contains(chat.MutedBy, uid) {
			flags = append(flags, "muted")
		}
		title := roster.Title(chat)
		if len(flags) > 0 {
			title += " [" + strings.Join(flags, ",") + "]"
		}
		status := ""
		if partner, ok := roster.Partner(chat); ok {
			status = presence.StatusLine(partner, now)
		} else if chat.IsPublic {
			status = "public room"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", chat.ID, title, status, chat.LastMessage)
	}
	_ = w.Flush()
	fmt.Printf("%d online\n", presence.OnlineCount())
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text...>",
	Short: "Send one text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedIn()
		if err != nil {
			return err
		}
		msg, err := c.SendText(cmd.Context(), args[0], strings.Join(args[1:], " "), "")
		if err != nil {
			return err
		}
		fmt.Println(msg.ID)
		return nil
	},
}
