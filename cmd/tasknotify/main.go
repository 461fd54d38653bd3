package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/config"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// errDeclined makes the process exit 1 without an error message
var errDeclined = errors.New("declined")

var (
	// Global flags
	origin         string
	hub            string
	token          string
	user           string
	pass           string
	name           string
	userID         string
	subjectPattern string
	connectTimeout time.Duration
	logLevel       string
	logFormat      string

	// Loaded by loadConfig
	cfg    config.Config
	logger zerolog.Logger
)

func main() {
	rootCmd := newRootCommand()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errDeclined) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tasknotify",
		Short: "Real-time task notification client",
		Long: `tasknotify listens for task expiry events on the message broker and shows
them as toast notifications. It can also ask the confirmation dialogs declared
by a page and publish task events for testing.

Every flag can also be set with a TASKNOTIFY_* environment variable.`,
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newListenCommand())
	rootCmd.AddCommand(newConfirmCommand())
	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newEndpointCommand())

	return rootCmd
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&origin, "origin", "http://localhost:8080", "Page origin the broker path is resolved against")
	flags.StringVar(&hub, "hub", "/hub/v1", "Broker path, or an absolute ws:// URL")
	flags.StringVar(&token, "token", "", "Broker token or JWT")
	flags.StringVar(&user, "user", "", "Broker user (with --pass)")
	flags.StringVar(&pass, "pass", "", "Broker password")
	flags.StringVar(&name, "name", "ui", "Client name reported to the broker")
	flags.StringVar(&userID, "user-id", "", "User whose task events are shown")
	flags.StringVar(&subjectPattern, "subject", "", "Subscription pattern (overrides --user-id)")
	flags.DurationVar(&connectTimeout, "connect-timeout", 120*time.Second, "Connection timeout")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "console", "Log format (console or json)")
}

// loadConfig reads the environment, applies the flags that were set and builds the logger
func loadConfig(cmd *cobra.Command, args []string) error {
	// Skip for help commands
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	loaded, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, &loaded)

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = logging.New(logging.Config{Level: loaded.LogLevel, Format: loaded.LogFormat})
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// applyFlags copies explicitly set flags over the environment values
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()

	stringFlags := map[string]struct {
		src *string
		dst *string
	}{
		"origin":     {&origin, &c.Origin},
		"hub":        {&hub, &c.Hub},
		"token":      {&token, &c.Token},
		"user":       {&user, &c.User},
		"pass":       {&pass, &c.Pass},
		"name":       {&name, &c.Name},
		"user-id":    {&userID, &c.UserID},
		"subject":    {&subjectPattern, &c.Subject},
		"log-level":  {&logLevel, &c.LogLevel},
		"log-format": {&logFormat, &c.LogFormat},
	}
	for flag, v := range stringFlags {
		if flags.Changed(flag) {
			*v.dst = *v.src
		}
	}
	if flags.Changed("connect-timeout") {
		c.ConnectTimeout = connectTimeout
	}
}
