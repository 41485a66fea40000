// Package schema describes the CLI command tree and the action surface in a
// machine-readable form for agent runtimes.
package schema

import (
	"fmt"
	"strings"

	"github.com/ggonzalez94/chedda-agent/internal/actions"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// Tool is an action exported as a function-calling tool definition.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Mutating    bool           `json:"mutating"`
	InputSchema map[string]any `json:"input_schema"`
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	if strings.TrimSpace(commandPath) != "" {
		for _, p := range strings.Fields(strings.TrimSpace(commandPath)) {
			next := findChild(cmd, p)
			if next == nil {
				return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
			}
			cmd = next
		}
	}
	return serialize(cmd), nil
}

// Tools converts actions into tool definitions, optionally limited to names.
func Tools(list []actions.Action, names ...string) ([]Tool, error) {
	byName := make(map[string]actions.Action, len(list))
	for _, a := range list {
		byName[a.Name] = a
	}
	if len(names) == 0 {
		out := make([]Tool, 0, len(list))
		for _, a := range list {
			out = append(out, tool(a))
		}
		return out, nil
	}
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("action not found: %s", name)
		}
		out = append(out, tool(a))
	}
	return out, nil
}

func tool(a actions.Action) Tool {
	return Tool{Name: a.Name, Description: a.Description, Mutating: a.Mutating, InputSchema: a.Schema.JSONSchema()}
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || contains(c.Aliases, name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	return items
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
