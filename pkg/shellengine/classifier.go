// Package shellengine drives the remote shell: SSH connect/reconnect,
// non-interactive command execution with safety classification and sudo
// wrapping, interactive PTY sessions, and OS fingerprinting (spec §4.2).
package shellengine

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// CommandClass is the safety tier a command is classified into.
type CommandClass string

const (
	ClassSafe    CommandClass = "SAFE"
	ClassSuspect CommandClass = "SUSPECT"
	ClassBlocked CommandClass = "BLOCKED"
)

// MaxCommandLength bounds the size of a command accepted for classification
// (spec §4.1: "BLOCKED for empty/>4096-byte commands").
const MaxCommandLength = 4096

var blockedPatterns = compileAll(
	`(?i)\brm\s+-[rRf]`,
	`(?i)\bmkfs\b`,
	`(?i)\bdd\b.*\bof=/dev/`,
	`(?i)\bshred\b`,
	`(?i)\btruncate\b.*\b/`,
	`(?i)chmod\s+[0-7]*7[0-7]*\s+/etc/sudoers`,
	`(?i)chmod\s+[0-7]*7[0-7]*\s+/etc/shadow`,
	`(?i)chmod\s+[0-7]*7[0-7]*\s+/etc/passwd`,
	`(?i)visudo\b`,
	`(?i)\bcurl\b.*\|\s*bash\b`,
	`(?i)\bwget\b.*\|\s*bash\b`,
	`(?i)\bcurl\b.*\|\s*sh\b`,
	`(?i)\bwget\b.*\|\s*sh\b`,
	`(?i)\bxmrig\b`,
	`(?i)\bminerd\b`,
	`(?i)stratum\+tcp://`,
	`(?i)echo\s+[01]\s+>\s*/proc/sys/kernel/panic`,
	`(?i)\bsysrq\b`,
	`(?i):\(\)\s*\{.*:\|:&\s*\}`,
	`(?i)bash\s+-i\s+>(&|\|)\s*/dev/tcp/`,
	`(?i)/dev/tcp/\d`,
	`(?i)/dev/udp/\d`,
	`(?i)\bpython[23]?\b.*\bsocket\b.*\bconnect\b`,
	`(?i)\bperl\b.*\bsocket\b.*\bINET\b`,
	`(?i)\bphp\b.*\bfsockopen\b`,
	`(?i)\bruby\b.*\bTCPSocket\b`,
	`(?i)\bnc\b.*-e\s+/bin/(ba)?sh`,
	`(?i)\bncat\b.*-e\s+/bin/(ba)?sh`,
	`(?i)\bsocat\b.*\bexec\b`,
	`(?i)\bhistory\s+-[cdw]`,
	`(?i)\bunset\s+HISTFILE\b`,
	`(?i)\bunset\s+HISTSIZE\b`,
	`(?i)export\s+HISTSIZE=0\b`,
	`(?i)export\s+HISTFILESIZE=0\b`,
	`(?i)>\s*/var/log/`,
	`(?i)\btruncate\b.*\b/var/log/`,
	`(?i)\brm\b.*\b/var/log/`,
	`(?i)\binsmod\b`,
	`(?i)\bmodprobe\b`,
	`(?i)\bwipefs\b`,
	`(?i)\bsgdisk\b.*-Z`,
)

var suspectPatterns = compileAll(
	`(?i)\bchmod\b`,
	`(?i)\bchown\b`,
	`(?i)\bpasswd\b`,
	`(?i)\buseradd\b|\busermod\b|\buserdel\b`,
	`(?i)\biptables\b|\bnftables\b|\bufw\b`,
	`(?i)\bcrontab\s+-[er]\b`,
	`(?i)\bsystemctl\s+(start|stop|disable|enable|mask)\b`,
	`(?i)\bscp\b|\brsync\b`,
	`(?i)\bnc\b|\bnetcat\b|\bncat\b`,
	`(?i)\bkill\b|\bkillall\b|\bpkill\b`,
	`(?i)\bmount\b|\bumount\b`,
	`(?i)\bchattr\b`,
	`(?i)\bsetenforce\b`,
)

var safePrefixes = []string{
	"ls", "cat", "less", "more", "head", "tail", "find", "locate",
	"grep", "awk", "sed", "sort", "uniq", "wc", "cut", "echo",
	"ps", "top", "htop", "lsof", "netstat", "ss", "ip", "ifconfig",
	"uname", "hostname", "id", "whoami", "w", "who", "last", "lastb",
	"history", "env", "printenv", "df", "du", "free", "uptime",
	"dmesg", "journalctl", "systemctl list", "systemctl status",
	"crontab -l", "stat", "file", "strings", "hexdump", "xxd",
	"md5sum", "sha256sum", "sha1sum", "ldd", "readelf", "objdump",
	"strace", "ltrace", "lsmod", "modinfo", "rpm", "dpkg", "apt list",
	"yum list", "pip list", "gem list", "docker ps", "docker inspect",
	"kubectl get", "kubectl describe",
	"getent", "timedatectl", "hostnamectl", "loginctl",
	"ausearch", "aureport",
	"pstree",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Classifier classifies commands into SAFE/SUSPECT/BLOCKED and caches the
// result by exact command string (spec §4.1: "default-suspect with
// exact-string cache"). The regex lists are inherent pattern-matching logic,
// not a concern any example library addresses — see DESIGN.md.
type Classifier struct {
	mu    sync.RWMutex
	cache map[string]classification
}

type classification struct {
	class  CommandClass
	reason string
}

// NewClassifier constructs a Classifier with an empty cache.
func NewClassifier() *Classifier {
	return &Classifier{cache: make(map[string]classification)}
}

// Classify returns (class, reason) for command, consulting and populating
// the exact-string cache.
func (c *Classifier) Classify(command string) (CommandClass, string) {
	stripped := strings.TrimSpace(command)

	c.mu.RLock()
	if cached, ok := c.cache[stripped]; ok {
		c.mu.RUnlock()
		return cached.class, cached.reason
	}
	c.mu.RUnlock()

	class, reason := classifyUncached(stripped)
	if class == ClassBlocked {
		slog.Warn("blocked command classified", "command_hash", commandHash(stripped))
	}

	c.mu.Lock()
	c.cache[stripped] = classification{class, reason}
	c.mu.Unlock()

	return class, reason
}

func classifyUncached(stripped string) (CommandClass, string) {
	if len(stripped) > MaxCommandLength {
		return ClassBlocked, "command exceeds maximum length"
	}
	if stripped == "" {
		return ClassBlocked, "empty command"
	}

	for _, p := range blockedPatterns {
		if p.MatchString(stripped) {
			return ClassBlocked, "matched blocklist pattern: " + p.String()
		}
	}

	lower := strings.ToLower(stripped)
	for _, prefix := range safePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ClassSafe, "matches safe prefix: " + prefix
		}
	}

	for _, p := range suspectPatterns {
		if p.MatchString(stripped) {
			return ClassSuspect, "matched suspect pattern: " + p.String()
		}
	}

	return ClassSuspect, "unknown command — requires analyst approval"
}

// IsAllowed reports whether command classifies as SAFE.
func (c *Classifier) IsAllowed(command string) bool {
	class, _ := c.Classify(command)
	return class == ClassSafe
}

// commandHash is used only for log correlation, never for the cache key
// itself (the cache keys on the literal command string).
func commandHash(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}
