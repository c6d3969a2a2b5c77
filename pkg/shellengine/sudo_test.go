package shellengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentryhound/sentryhound/pkg/models"
)

func TestSudoPolicy_WrapCommand_NoSudoRequired(t *testing.T) {
	p := SudoPolicy{Method: models.SudoNopasswd}
	assert.Equal(t, "ls -la", p.WrapCommand("ls -la", false))
}

func TestSudoPolicy_WrapCommand_MethodNone(t *testing.T) {
	p := SudoPolicy{Method: models.SudoNone}
	assert.Equal(t, "ls -la", p.WrapCommand("ls -la", true))
}

func TestSudoPolicy_WrapCommand_Nopasswd(t *testing.T) {
	p := SudoPolicy{Method: models.SudoNopasswd}
	assert.Equal(t, "sudo -n cat /etc/shadow", p.WrapCommand("cat /etc/shadow", true))
}

func TestSudoPolicy_WrapCommand_SSHPassword(t *testing.T) {
	p := SudoPolicy{Method: models.SudoSSHPassword}
	assert.Equal(t, "sudo -S cat /etc/shadow", p.WrapCommand("cat /etc/shadow", true))
}

func TestSudoPolicy_WrapCommand_CustomPassword(t *testing.T) {
	p := SudoPolicy{Method: models.SudoCustomPassword}
	assert.Equal(t, "sudo -S cat /etc/shadow", p.WrapCommand("cat /etc/shadow", true))
}

func TestSudoPolicy_WrapCommand_AlreadyWrapped(t *testing.T) {
	p := SudoPolicy{Method: models.SudoSSHPassword}
	assert.Equal(t, "sudo cat /etc/shadow", p.WrapCommand("sudo cat /etc/shadow", true))
}

func TestScrubSudoPrompt_RemovesPromptLine(t *testing.T) {
	stderr := "[sudo] password for alice: \nsome error output\n"
	scrubbed := scrubSudoPrompt(stderr)
	assert.Equal(t, "some error output\n", scrubbed)
}

func TestScrubSudoPrompt_NoPromptLeavesStderrUnchanged(t *testing.T) {
	stderr := "permission denied\n"
	assert.Equal(t, stderr, scrubSudoPrompt(stderr))
}
