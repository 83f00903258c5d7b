package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"shopchat-go/internal/config"
	"shopchat-go/pkg/token"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT signed with jwt.secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Conf.JWT
			if cfg.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}
			if role != token.RoleAdmin && role != token.RoleGuest {
				return fmt.Errorf("unknown role %q", role)
			}
			if userID == "" {
				userID = config.Conf.Chat.UserID
			}
			t, err := token.NewJWTManager(cfg.Secret, cfg.AccessTokenExpireHours).GenerateToken(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "subject user id (defaults to chat.user_id)")
	cmd.Flags().StringVar(&role, "role", token.RoleAdmin, "ADMIN or GUEST")
	return cmd
}
