package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/client"
	"realtime-chat/internal/config"
)

func init() {
	devTokenCmd.Flags().String("uid", "", "user id (subject)")
	devTokenCmd.Flags().String("email", "", "email address")
	devTokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = devTokenCmd.MarkFlagRequired("uid")

	rootCmd.AddCommand(loginCmd, logoutCmd, devTokenCmd, whoamiCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Save a session token issued by the identity provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return signIn(cmd.Context(), args[0])
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.ClearToken(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

// devTokenCmd signs a token with the service's own secret. The admin role is
// granted only to emails on ADMIN_EMAILS.
var devTokenCmd = &cobra.Command{
	Use:   "dev-token",
	Short: "Mint and save a development session token (needs JWT_SECRET)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		uid, _ := cmd.Flags().GetString("uid")
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		id := auth.Identity{UID: uid, Email: email, Admin: email != "" && cfg.IsAdminEmail(email)}
		token, err := auth.Issue(cfg.JWTSecret, cfg.JWTIssuer, id, ttl)
		if err != nil {
			return err
		}
		if err := signIn(cmd.Context(), token); err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
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
		role := "user"
		if id.Admin {
			role = "admin"
		}
		fmt.Printf("%s <%s> (%s)\n", id.UID, id.Email, role)
		return nil
	},
}

// signIn saves token and follows a deep link that was opened while signed out.
func signIn(ctx context.Context, token string) error {
	id, err := client.IdentityFromToken(token)
	if err != nil {
		return err
	}
	if err := store.SetToken(token); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s.\n", id.UID)

	link, ok, err := store.TakePendingInvite()
	if err != nil || !ok {
		return err
	}
	return follow(ctx, client.New(serverURL, token), link)
}
