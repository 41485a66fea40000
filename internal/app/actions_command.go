package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/actions"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution"
	"github.com/ggonzalez94/chedda-agent/internal/schema"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Run agent actions and inspect the action journal"}

	var input, inputFile string
	run := &cobra.Command{
		Use:   "run <action>",
		Short: "Run an action with a JSON object input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readActionInput(cmd.InOrStdin(), input, inputFile)
			if err != nil {
				return err
			}
			d, err := s.dispatcher(cmd.Context())
			if err != nil {
				return err
			}
			res, err := d.RunJSON(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, res.ActionID)
		},
	}
	run.Flags().StringVar(&input, "input", "", "Action input as a JSON object, or - to read stdin")
	run.Flags().StringVar(&inputFile, "input-file", "", "Path to a file holding the JSON input")

	var names []string
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print tool definitions for the available actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := actions.New(actions.Deps{Network: s.network, EnabledActions: s.settings.EnableActions})
			tools, err := schema.Tools(d.List(), names...)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build action schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), tools, "")
		},
	}
	schemaCmd.Flags().StringSliceVar(&names, "action", nil, "Limit to these action names")

	var status, actionName string
	var limit int
	var allNetworks bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List journaled actions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !validActionStatus(status) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action status %q", status))
			}
			journal, err := s.openJournal()
			if err != nil {
				return err
			}
			filter := execution.ListFilter{
				Status: execution.ActionStatus(status),
				Name:   actionName,
				Limit:  limit,
			}
			if !allNetworks {
				filter.Network = s.network.Slug
			}
			items, err := journal.List(filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, "")
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (validated, encoded, submitted, confirmed, failed)")
	list.Flags().StringVar(&actionName, "action", "", "Filter by action name")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	list.Flags().BoolVar(&allNetworks, "all-networks", false, "Include actions journaled on every network")

	statusCmd := &cobra.Command{
		Use:   "status <action-id|tx-hash>",
		Short: "Show one journaled action by id or by the transaction it submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := s.openJournal()
			if err != nil {
				return err
			}
			key := strings.TrimSpace(args[0])
			var action execution.Action
			if isTxHash(key) {
				action, err = journal.ByTxHash(key)
			} else {
				action, err = journal.Get(key)
			}
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeInternal, "get action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, action.ActionID)
		},
	}

	root.AddCommand(run, schemaCmd, list, statusCmd)
	return root
}

func readActionInput(stdin io.Reader, input, inputFile string) ([]byte, error) {
	switch {
	case input != "" && inputFile != "":
		return nil, clierr.New(clierr.CodeUsage, "use only one of --input or --input-file")
	case input == "-":
		buf, err := io.ReadAll(stdin)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read stdin", err)
		}
		return buf, nil
	case inputFile != "":
		buf, err := os.ReadFile(inputFile)
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("input file %s does not exist", inputFile))
		}
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read input file", err)
		}
		return buf, nil
	default:
		return []byte(input), nil
	}
}

func isTxHash(v string) bool {
	return strings.HasPrefix(v, "0x") && len(common.FromHex(v)) == common.HashLength
}

func validActionStatus(v string) bool {
	switch execution.ActionStatus(v) {
	case execution.ActionStatusValidated, execution.ActionStatusEncoded, execution.ActionStatusSubmitted,
		execution.ActionStatusConfirmed, execution.ActionStatusFailed:
		return true
	}
	return false
}
