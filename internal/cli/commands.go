// Package cli implements the apiaccess command line tool: it keeps a
// session on disk between invocations and exposes the access layer's
// operations as commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/internal/common/logtrace"
	"github.com/tansive/apiaccess/internal/config"
	"github.com/tansive/apiaccess/pkg/api"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Global flags
	jsonOutput bool
	configFile string

	// loaded by the persistent pre-run hook
	cfg *config.ConfigParam

	// extraOptions are appended when the client is built.
	extraOptions []api.ClientOption
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apiaccess [command] [flags]",
		Short: "apiaccess - command line access to the API",
		Long: `apiaccess talks to the API on behalf of a signed-in user.
It keeps the session token between invocations, can act as another user
through the identity service, and issues REST and GraphQL requests.

Examples:
  # Start a session with a token obtained from the identity service
  apiaccess login --token eyJhbGciOi...

  # Fetch a resource
  apiaccess request GET /courses --query term=2024fa

  # Act as another user
  apiaccess impersonate jdoe`,
		PersistentPreRunE: preRunHandlePersistents,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newImpersonateCmd())
	rootCmd.AddCommand(newUnimpersonateCmd())
	rootCmd.AddCommand(newCanImpersonateCmd())
	rootCmd.AddCommand(newRequestCmd())
	rootCmd.AddCommand(newGraphQLCmd())
	rootCmd.AddCommand(newTrackCmd())
	return rootCmd
}

// Execute runs the command line. This is called by main.main().
func Execute() {
	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(os.Stdout, map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// preRunHandlePersistents loads the configuration and sets up logging
// before any command that talks to a service.
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "version" {
			return nil
		}
	}

	loaded, err := config.LoadConfig(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			path := configFile
			if path == "" {
				path, _ = config.DefaultConfigPath()
			}
			return fmt.Errorf("config file not found at %s", path)
		}
		return err
	}
	cfg = loaded
	logtrace.InitLoggerWithWriter(cmd.ErrOrStderr(), cfg.Log.Level)
	return nil
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of apiaccess",
		Run: func(cmd *cobra.Command, args []string) {
			configPath := configFile
			if configPath == "" {
				var err error
				if configPath, err = config.DefaultConfigPath(); err != nil {
					configPath = "unknown"
				}
			}

			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{
					"version":     getCLIVersion(),
					"config_file": configPath,
				})
			} else {
				cmd.Printf("apiaccess %s\n", getCLIVersion())
				cmd.Printf("Config file: %s\n", configPath)
			}
		},
	}
}

// printJSON prints data as indented JSON
func printJSON(w io.Writer, data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printOutput prints data as JSON with --json and as YAML otherwise
func printOutput(w io.Writer, data any) error {
	if jsonOutput {
		return printJSON(w, data)
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// getCLIVersion returns the current CLI version
func getCLIVersion() string {
	return "v0.1.0"
}
