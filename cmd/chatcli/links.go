package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"realtime-chat/internal/client"
	"realtime-chat/internal/deeplink"
)

func init() {
	roomCmd.AddCommand(roomCreateCmd)
	rootCmd.AddCommand(inviteLinkCmd, followCmd, roomCmd)
}

var inviteLinkCmd = &cobra.Command{
	Use:   "invite-link",
	Short: "Print a link that opens a direct chat with you",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := store.Token()
		if err != nil {
			return err
		}
		if token == "" {
			return errSignedOut
		}
		id, err := client.IdentityFromToken(token)
		if err != nil {
			return err
		}
		fmt.Println(deeplink.InviteLink(serverURL, id.UID))
		return nil
	},
}

// followCmd handles invite and join links. Opened while signed out, the link
// is kept on the device and followed right after the next sign-in.
var followCmd = &cobra.Command{
	Use:   "follow <link>",
	Short: "Follow an invite or room join link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := deeplink.Parse(args[0])
		if err != nil {
			return err
		}
		if link.Kind == deeplink.KindNone {
			return errors.New("not an invite or join link")
		}
		c, err := signedIn()
		if errors.Is(err, errSignedOut) {
			if err := store.SetPendingInvite(link); err != nil {
				return err
			}
			fmt.Println("Link saved. It will be opened after you sign in.")
			return nil
		}
		if err != nil {
			return err
		}
		return follow(cmd.Context(), c, link)
	},
}

func follow(ctx context.Context, c *client.Client, link deeplink.Link) error {
	switch link.Kind {
	case deeplink.KindInvite:
		chat, err := c.AcceptInvite(ctx, link.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Direct chat ready: %s\n", chat.ID)
	case deeplink.KindJoin:
		chat, err := c.JoinRoom(ctx, link.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Joined %s (%s)\n", chat.GroupName, chat.ID)
	default:
		return deeplink.ErrInvalidLink
	}
	return nil
}

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Public rooms",
}

var roomCreateCmd = &cobra.Command{
	Use:   "create <name...>",
	Short: "Create a public room and print its join link",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedIn()
		if err != nil {
			return err
		}
		chat, link, err := c.CreateRoom(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("Room %s created.\nJoin link: %s\n", chat.ID, link)
		return nil
	},
}
