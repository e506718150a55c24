package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"taskdeck/internal/utils"
)

// newLoginCmd creates the 'login' command
func newLoginCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in to the task store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			email := ""
			if len(args) == 1 {
				email = args[0]
			}
			password, _ := cmd.Flags().GetString("password")
			return doLogin(cmd.Context(), a, email, password, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("password", "", "Password (prompted when omitted)")
	return cmd
}

// newSignupCmd creates the 'signup' command
func newSignupCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup [email]",
		Short: "Create a new account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			email := ""
			if len(args) == 1 {
				email = args[0]
			}
			password, _ := cmd.Flags().GetString("password")
			return doSignup(cmd.Context(), a, email, password, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("password", "", "Password (prompted when omitted)")
	return cmd
}

// newLogoutCmd creates the 'logout' command
func newLogoutCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return doLogout(cmd.Context(), a, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newWhoamiCmd creates the 'whoami' command
func newWhoamiCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return doWhoami(cmd.Context(), a, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doLogin(ctx context.Context, a *app, email, password string, stdout io.Writer) error {
	var err error
	if email == "" {
		email, err = promptLine(a, stdout, "Email: ")
		if err != nil {
			return err
		}
	}
	if password == "" {
		password, err = promptPassword(a, stdout, "Password: ")
		if err != nil {
			return err
		}
	}

	sess, err := a.store.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	// The session subscription persists on SIGNED_IN too, but saving here
	// surfaces the error to the user instead of a log line.
	if err := a.creds.Save(ctx, sess); err != nil {
		utils.Warnf("session not persisted, you will need to sign in again next time: %v", err)
	}

	if a.jsonOutput() {
		return writeJSON(stdout, map[string]string{
			"status": "signed_in",
			"email":  sess.User.Email,
			"userId": sess.User.ID,
		})
	}
	_, _ = fmt.Fprintf(stdout, "Signed in as %s\n", sess.User.Email)
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

func doSignup(ctx context.Context, a *app, email, password string, stdout io.Writer) error {
	var err error
	if email == "" {
		email, err = promptLine(a, stdout, "Email: ")
		if err != nil {
			return err
		}
	}
	if password == "" {
		password, err = promptPassword(a, stdout, "Password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword(a, stdout, "Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return utils.ErrAuthenticationFailed("passwords do not match")
		}
	}

	user, err := a.store.SignUp(ctx, email, password)
	if err != nil {
		return err
	}

	if a.jsonOutput() {
		return writeJSON(stdout, map[string]string{
			"status": "signed_up",
			"email":  user.Email,
			"userId": user.ID,
		})
	}
	_, _ = fmt.Fprintf(stdout, "Account created for %s. Run 'taskdeck login' to sign in.\n", user.Email)
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

func doLogout(ctx context.Context, a *app, stdout io.Writer) error {
	if err := a.store.SignOut(ctx); err != nil {
		// Still clear local credentials when the server call fails.
		utils.Warnf("sign-out request failed: %v", err)
	}
	if err := a.creds.Delete(ctx); err != nil {
		return err
	}

	if a.jsonOutput() {
		return writeJSON(stdout, map[string]string{"status": "signed_out"})
	}
	_, _ = fmt.Fprintln(stdout, "Signed out.")
	printResult(stdout, a.cli, ResultActionCompleted)
	return nil
}

func doWhoami(ctx context.Context, a *app, stdout io.Writer) error {
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	user, err := a.store.GetUser(ctx)
	if err != nil {
		return err
	}

	if a.jsonOutput() {
		return writeJSON(stdout, user)
	}
	_, _ = fmt.Fprintf(stdout, "Signed in as %s (%s)\n", user.Email, user.ID)
	printResult(stdout, a.cli, ResultInfoOnly)
	return nil
}

// promptLine reads a single line of input, echoed.
func promptLine(a *app, stdout io.Writer, prompt string) (string, error) {
	if a.cli.NoPrompt {
		return "", utils.ErrAuthenticationFailed("input required but prompts are disabled")
	}
	_, _ = fmt.Fprint(stdout, prompt)
	line, err := a.promptInput().ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(a *app, stdout io.Writer, prompt string) (string, error) {
	if a.cli.NoPrompt {
		return "", utils.ErrAuthenticationFailed("password required but prompts are disabled")
	}
	_, _ = fmt.Fprint(stdout, prompt)

	if a.cli.Stdin == nil && term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		_, _ = fmt.Fprintln(stdout)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := a.promptInput().ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func writeJSON(stdout io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return nil
}
