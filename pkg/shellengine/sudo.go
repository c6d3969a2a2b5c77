package shellengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// sudoPromptPattern matches the interactive sudo password prompt line so it
// can be scrubbed from captured stderr (spec §4.1).
var sudoPromptPattern = regexp.MustCompile(`(?m)^\[sudo\] password for \S+:\s*`)

// scrubSudoPrompt removes the "[sudo] password for <user>:" line from stderr.
func scrubSudoPrompt(stderr string) string {
	return strings.TrimLeft(sudoPromptPattern.ReplaceAllString(stderr, ""), "\n")
}

// SudoPolicy decides whether and how to prepend sudo to a command, per the
// asset's configured sudo method (spec §4.1, §4.3).
type SudoPolicy struct {
	Method models.SudoMethod
}

// WrapCommand wraps command with the appropriate sudo invocation when
// requiresSudo is set. A command already starting with "sudo " is left
// untouched.
func (p SudoPolicy) WrapCommand(command string, requiresSudo bool) string {
	if !requiresSudo || p.Method == models.SudoNone {
		return command
	}
	if strings.HasPrefix(strings.TrimSpace(command), "sudo ") {
		return command
	}

	if p.Method == models.SudoNopasswd {
		return fmt.Sprintf("sudo -n %s", command)
	}
	// ssh_password and custom_password both pipe the password via stdin.
	return fmt.Sprintf("sudo -S %s", command)
}
