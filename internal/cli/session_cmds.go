package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/marketsync/internal/session"
)

func (a *App) newLoginCommand() *cobra.Command {
	var (
		token    string
		userID   string
		userName string
		userJSON string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the access token used by every channel",
		Long: `Store the access token and, optionally, the user object returned at sign-in.

The user id is taken from --user-id, then from the user object, then from the token claims.`,
		Example: `  marketsync login --token "$TOKEN"
  marketsync login --token "$TOKEN" --user '{"_id":"u1","full_name":"Ada"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			ctx := cmd.Context()
			sess, st, err := a.openSession()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := sess.Clear(ctx); err != nil {
				return err
			}
			if err := sess.Save(ctx, session.Credentials{Token: token, UserID: userID, UserName: userName}); err != nil {
				return err
			}
			if userJSON != "" {
				if err := sess.SaveUser(ctx, []byte(userJSON)); err != nil {
					return err
				}
			}

			creds, err := sess.Load(ctx)
			if err != nil {
				return err
			}
			if !creds.Valid() {
				_ = sess.Clear(ctx)
				return errors.New("token is expired or carries no user id, pass --user-id or --user")
			}
			a.logger.Info().Str("user_id", creds.UserID).Msg("logged in")
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(creds))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token (JWT)")
	cmd.Flags().StringVar(&userID, "user-id", "", "user id, when the token does not carry one")
	cmd.Flags().StringVar(&userName, "name", "", "display name sent with typing indicators")
	cmd.Flags().StringVar(&userJSON, "user", "", "user object JSON returned by the backend at sign-in")
	return cmd
}

func (a *App) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, st, err := a.openSession()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := sess.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *App) newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, _, st, err := a.credentials(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Fprintln(cmd.OutOrStdout(), displayName(creds))
			return nil
		},
	}
}

func displayName(c session.Credentials) string {
	if c.UserName == "" || c.UserName == c.UserID {
		return c.UserID
	}
	return fmt.Sprintf("%s (%s)", c.UserName, c.UserID)
}
