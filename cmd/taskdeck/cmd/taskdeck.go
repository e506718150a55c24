package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"taskdeck/internal/cache"
	"taskdeck/internal/config"
	"taskdeck/internal/credentials"
	"taskdeck/internal/session"
	"taskdeck/internal/shutdown"
	"taskdeck/internal/tasks"
	"taskdeck/internal/utils"
	"taskdeck/store"
	"taskdeck/store/memory"
	"taskdeck/store/supabase"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string
	ConfigPath   string              // Path to config file (for testing)
	CachePath    string              // Path to cache database (for testing)
	StateDir     string              // Session fallback directory (for testing)
	Store        store.Client        // Pre-built store client (for testing)
	Keyring      credentials.Keyring // Keyring override (for testing)
	Stdin        io.Reader           // Input source for prompts (for testing)
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewTaskdeck(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		// Check if --json flag was passed to output error as JSON
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if s := suggestionOf(err); s != "" {
				_, _ = fmt.Fprintln(stderr, "Suggestion:", s)
			}
			// Emit ERROR result code in no-prompt mode
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// outputErrorJSON writes an error as a JSON object
func outputErrorJSON(err error, stdout io.Writer) {
	out := struct {
		Error      string `json:"error"`
		Suggestion string `json:"suggestion,omitempty"`
	}{
		Error:      err.Error(),
		Suggestion: suggestionOf(err),
	}
	data, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		_, _ = fmt.Fprintf(stdout, `{"error":%q}`+"\n", err.Error())
		return
	}
	_, _ = fmt.Fprintln(stdout, string(data))
}

func suggestionOf(err error) string {
	var sugg *utils.ErrorWithSuggestion
	if errors.As(err, &sugg) {
		return sugg.GetSuggestion()
	}
	return ""
}

// NewTaskdeck creates the root command with injectable IO
func NewTaskdeck(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "taskdeck",
		Short:   "A personal task manager",
		Long:    "taskdeck manages your personal tasks against a remote store, with a dashboard, list and calendar views.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	cmd.AddCommand(newLoginCmd(stdout, cfg))
	cmd.AddCommand(newSignupCmd(stdout, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, cfg))
	cmd.AddCommand(newWhoamiCmd(stdout, cfg))
	cmd.AddCommand(newListCmd(stdout, cfg))
	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newEditCmd(stdout, cfg))
	cmd.AddCommand(newDoneCmd(stdout, cfg))
	cmd.AddCommand(newRmCmd(stdout, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newCalendarCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(stdout, cfg))

	return cmd
}

// applyGlobalFlags copies persistent flag values into the CLI config.
func applyGlobalFlags(cmd *cobra.Command, cfg *Config) {
	if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
		cfg.NoPrompt = true
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		cfg.OutputFormat = "json"
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = path
	}
	utils.SetVerboseMode(cfg.Verbose)
}

// app bundles the wired-up components a command handler needs.
type app struct {
	cfg      *config.Config
	cli      *Config
	store    store.Client
	creds    *credentials.Manager
	guard    *session.Guard
	repo     *tasks.Repository
	cache    *cache.Cache
	bgLog    *utils.BackgroundLogger
	shutdown *shutdown.Manager
	stdin    *bufio.Reader

	// onSignOut, when set, runs whenever the session transitions to
	// signed out. Long-lived commands install it after construction.
	onSignOut atomic.Pointer[func()]
}

// newApp loads configuration, builds the store client, restores any persisted
// session and wires the session guard. Callers must defer app.close.
func newApp(cmd *cobra.Command, cliCfg *Config) (*app, error) {
	applyGlobalFlags(cmd, cliCfg)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyFlags(cliCfg.NoPrompt, cliCfg.OutputFormat)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		cli:      cliCfg,
		shutdown: shutdown.NewManager(),
	}

	bgLog, err := utils.NewBackgroundLogger(cfg.IsBackgroundLoggingEnabled())
	if err != nil {
		utils.Debugf("background logger unavailable: %v", err)
	} else {
		a.bgLog = bgLog
		a.shutdown.Register("background logger", func(context.Context) error {
			bgLog.Close()
			return nil
		})
	}

	client, err := buildStoreClient(cfg, cliCfg)
	if err != nil {
		return nil, err
	}
	a.store = client
	a.shutdown.RegisterCloser("store client", client.Close)

	credOpts := []credentials.ManagerOption{}
	if cliCfg.Keyring != nil {
		credOpts = append(credOpts, credentials.WithKeyring(cliCfg.Keyring))
	}
	if cliCfg.StateDir != "" {
		credOpts = append(credOpts, credentials.WithFallbackDir(cliCfg.StateDir))
	}
	a.creds = credentials.NewManager(credOpts...)

	// Restore the persisted session before any guarded call runs.
	if sess, source, err := a.creds.Load(context.Background()); err != nil {
		utils.Warnf("could not restore session: %v", err)
	} else if sess != nil {
		utils.Debugf("restored session from %s", source)
		client.SetSession(sess)
	}

	// Keep persisted credentials in step with the live session so a token
	// refresh survives the next invocation.
	unsubscribe := client.OnSessionChange(func(event store.Event, sess *store.Session) {
		switch event {
		case store.EventSignedIn:
			if sess == nil {
				return
			}
			if err := a.creds.Save(context.Background(), sess); err != nil {
				utils.Warnf("could not persist session: %v", err)
			}
		case store.EventSignedOut:
			if err := a.creds.Delete(context.Background()); err != nil {
				utils.Warnf("could not clear persisted session: %v", err)
			}
		}
	})
	a.shutdown.Register("session subscription", func(context.Context) error {
		unsubscribe()
		return nil
	})

	a.guard = session.NewGuard(client, session.WithSignOutHandler(func() {
		if fn := a.onSignOut.Load(); fn != nil {
			(*fn)()
		}
	}))
	a.shutdown.Register("session guard", func(context.Context) error {
		a.guard.Close()
		return nil
	})

	a.repo = tasks.NewRepository(client)

	if cfg.IsCacheEnabled() {
		path := cliCfg.CachePath
		if path == "" {
			path = cfg.GetCachePath()
		}
		c, err := cache.New(path)
		if err != nil {
			utils.Warnf("task cache disabled: %v", err)
		} else {
			a.cache = c
			a.shutdown.RegisterCloser("task cache", c.Close)
		}
	}

	return a, nil
}

// buildStoreClient constructs the row store named by the config backend.
func buildStoreClient(cfg *config.Config, cliCfg *Config) (store.Client, error) {
	if cliCfg.Store != nil {
		return cliCfg.Store, nil
	}
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	default:
		return supabase.New(supabase.Config{
			URL:     cfg.Store.URL,
			AnonKey: cfg.Store.AnonKey,
		})
	}
}

// close runs the registered cleanups with a short deadline.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.shutdown.Shutdown(ctx)
}

// requireSession resolves the current session or fails with a sign-in hint.
func (a *app) requireSession(ctx context.Context) (*store.Session, error) {
	return a.guard.Require(ctx)
}

// promptInput returns the shared buffered reader for interactive prompts so
// consecutive prompts never drop buffered lines.
func (a *app) promptInput() *bufio.Reader {
	if a.stdin == nil {
		in := io.Reader(os.Stdin)
		if a.cli.Stdin != nil {
			in = a.cli.Stdin
		}
		a.stdin = bufio.NewReader(in)
	}
	return a.stdin
}

// jsonOutput reports whether command output should be JSON.
func (a *app) jsonOutput() bool {
	return a.cfg.OutputFormat == "json"
}

// printResult emits the machine-readable result code in no-prompt mode.
func printResult(stdout io.Writer, cfg *Config, code string) {
	if cfg != nil && cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, code)
	}
}
