package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/pm/internal/adapters/session"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/wire"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a backend token for later commands",
	Long: `Store a token issued by the backend's login endpoint.

Identity (user id, name, role) and expiry are read from the token's claims.
Flags override the claims, and are required for tokens that are not JWTs.`,
	Example: `  pm login --token eyJhbGciOi...
  pm login --token eyJhbGciOi... --api-url https://pm.example.com
  pm login --token opaque-token --user-id 7 --name alice --role Developer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		userID, _ := cmd.Flags().GetInt64("user-id")
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		apiURL, _ := cmd.Flags().GetString("api-url")

		sess, err := buildSession(token, userID, name, role)
		if err != nil {
			return err
		}
		if apiURL != "" {
			if err := wire.SaveAPIURL(apiURL); err != nil {
				return err
			}
		}
		store, err := wire.Sessions()
		if err != nil {
			return err
		}
		if err := store.SignIn(cmd.Context(), sess); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s (%s)\n", displayName(sess), sess.Role)
		if !sess.ExpiresAt.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "  Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := wire.Sessions()
		if err != nil {
			return err
		}
		if err := store.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := wire.Sessions()
		if err != nil {
			return err
		}
		sess, err := store.Current(cmd.Context())
		if err != nil {
			return fmt.Errorf("not signed in: %w\nHint: run `pm login --token <token>`", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User:    %s\n", displayName(sess))
		fmt.Fprintf(out, "ID:      %d\n", sess.UserID)
		fmt.Fprintf(out, "Role:    %s\n", sess.Role)
		if !sess.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
		}
		if cfg, err := wire.Config(); err == nil {
			fmt.Fprintf(out, "API:     %s\n", cfg.API.BaseURL)
		}
		return nil
	},
}

// buildSession combines token claims with flag overrides.
func buildSession(token string, userID int64, name, role string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("--token is required")
	}

	sess, err := session.FromToken(token)
	if err != nil {
		if userID == 0 || role == "" {
			return nil, fmt.Errorf("%w\nHint: pass --user-id and --role for tokens that are not JWTs", err)
		}
		sess = &models.Session{Token: token}
	}

	if userID != 0 {
		sess.UserID = userID
	}
	if name != "" {
		sess.UserName = name
	}
	if role != "" {
		sess.Role = models.Role(role)
	}

	if sess.UserID <= 0 {
		return nil, fmt.Errorf("token carries no user id; pass --user-id")
	}
	switch sess.Role {
	case models.RoleAdmin, models.RoleProjectManager, models.RoleDeveloper:
	default:
		return nil, fmt.Errorf("invalid role %q\nValid roles: %s, %s, %s", sess.Role, models.RoleAdmin, models.RoleProjectManager, models.RoleDeveloper)
	}
	if sess.Expired(time.Now()) {
		return nil, fmt.Errorf("token expired at %s", sess.ExpiresAt.Format(time.RFC3339))
	}
	return sess, nil
}

func displayName(sess *models.Session) string {
	if sess.UserName != "" {
		return sess.UserName
	}
	return fmt.Sprintf("user %d", sess.UserID)
}

// LoginCmd returns the login command
func LoginCmd() *cobra.Command {
	loginCmd.Flags().String("token", "", "Token issued by the backend (required)")
	loginCmd.Flags().Int64("user-id", 0, "User id (overrides the token claim)")
	loginCmd.Flags().String("name", "", "User name (overrides the token claim)")
	loginCmd.Flags().String("role", "", "Role: Admin, ProjectManager or Developer (overrides the token claim)")
	loginCmd.Flags().String("api-url", "", "Backend address to save in the config file")
	return loginCmd
}

// LogoutCmd returns the logout command
func LogoutCmd() *cobra.Command {
	return logoutCmd
}

// WhoamiCmd returns the whoami command
func WhoamiCmd() *cobra.Command {
	return whoamiCmd
}
