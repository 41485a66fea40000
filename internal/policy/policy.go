package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

// CheckCommandAllowed applies --enable-commands to a command path such as
// "multisig create". An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if allowed(allowlist, commandPath, normalizeCommand) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckActionAllowed applies the enabled-actions allowlist to an action name.
func CheckActionAllowed(allowlist []string, action string) error {
	if allowed(allowlist, action, normalizeAction) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("action %s blocked by enabled_actions policy", action))
}

func allowed(allowlist []string, v string, norm func(string) string) bool {
	if len(allowlist) == 0 {
		return true
	}
	target := norm(v)
	for _, entry := range allowlist {
		if norm(entry) == target {
			return true
		}
	}
	return false
}

func normalizeCommand(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

// Action names are snake_case; a dash form is accepted too.
func normalizeAction(v string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_")
}
