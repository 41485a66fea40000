package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggonzalez94/chedda-agent/internal/config"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/logging"
	"github.com/ggonzalez94/chedda-agent/internal/model"
	"github.com/ggonzalez94/chedda-agent/internal/out"
	"github.com/ggonzalez94/chedda-agent/internal/policy"
	"github.com/ggonzalez94/chedda-agent/internal/schema"
	"github.com/ggonzalez94/chedda-agent/internal/version"
	"github.com/spf13/cobra"
)

var log = logging.Logger("app")

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	network     id.Network
	root        *cobra.Command
	lastCommand string
	warnings    []string

	resources
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	if closeErr := state.close(); closeErr != nil {
		log.Warnw("close resources", "err", closeErr)
	}
	err = normalizeRunError(err)
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "DeFi actions for agents with per-user Safe custody",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			if err := logging.Setup(settings.LogLevel, settings.LogFormat); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			network, err := id.ParseNetwork(settings.Network)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "resolve network", err)
			}
			s.network = network
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.StringVar(&s.flags.EnableActions, "enable-actions", "", "Allowlist action names (comma-separated)")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Safe service request timeout")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per Safe service request")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&s.flags.Network, "network", "", "Network slug, name or CAIP-2 id")
	pf.StringVar(&s.flags.RPCURL, "rpc-url", "", "JSON-RPC endpoint override")
	pf.StringVar(&s.flags.SafeServiceURL, "safe-service-url", "", "Safe Transaction Service endpoint override")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Key source: auto, env, file or keystore")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the on-disk constants cache")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newMultisigCommand())
	cmd.AddCommand(s.newAgentsCommand())
	cmd.AddCommand(s.newVaultsCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, "")
		},
	}
}

func (s *runtimeState) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, actionID string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: s.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.network.Slug,
			ActionID:  actionID,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    clierr.TypeName(clierr.Code(code)),
			Message: err.Error(),
		},
		Warnings: s.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.network.Slug,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
