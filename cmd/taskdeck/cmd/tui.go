package cmd

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"taskdeck/internal/tui"
	"taskdeck/internal/utils"
)

// newTUICmd creates the 'tui' command
func newTUICmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			sess, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}

			model := tui.New(a.repo, sess.User.ID, sess.User.Email)
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(stdout))

			// A sign-out anywhere (another process, a failed token
			// refresh) terminates the dashboard.
			notify := func() { program.Send(tui.SessionEndedMsg{}) }
			a.onSignOut.Store(&notify)

			final, err := program.Run()
			if err != nil {
				return err
			}
			if m, ok := final.(*tui.Model); ok && m.SessionEnded() {
				return utils.ErrSessionExpired()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
