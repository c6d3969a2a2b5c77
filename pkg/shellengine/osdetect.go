package shellengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// osDetectTimeout bounds each fingerprinting probe.
const osDetectTimeout = 10 * time.Second

// OSFingerprint is the result of the detection pipeline run against a newly
// connected session (spec §4.2).
type OSFingerprint struct {
	OSType   models.OSType
	Version  string
	Metadata map[string]string
}

// DetectOS runs a short fingerprinting pipeline over conn — uname, then
// /etc/os-release on Linux, then arch and kernel version — grounded on the
// original's detect_os. A failed probe leaves its field unset, so the result
// degrades to partial metadata rather than failing the whole session; the
// returned error is always nil.
func DetectOS(ctx context.Context, conn *Connection, executor *Executor, policy SudoPolicy) (OSFingerprint, error) {
	fp := OSFingerprint{OSType: models.OSUnknown, Metadata: map[string]string{}}

	stdout, _, exitCode, err := executor.Execute(ctx, conn, policy, "uname -a", osDetectTimeout, false, false, "")
	if err == nil && exitCode == 0 && stdout != "" {
		fp.Metadata["uname"] = strings.TrimSpace(stdout)
		lower := strings.ToLower(stdout)
		switch {
		case strings.Contains(lower, "linux"):
			fp.OSType = models.OSLinux
		case strings.Contains(lower, "darwin"):
			fp.OSType = models.OSMacOS
		case strings.Contains(lower, "freebsd"), strings.Contains(lower, "bsd"):
			fp.OSType = models.OSLinux // treated as linux-like
		}
	}

	if fp.OSType == models.OSLinux {
		stdout, _, exitCode, err := executor.Execute(ctx, conn, policy, "cat /etc/os-release 2>/dev/null", osDetectTimeout, false, false, "")
		if err == nil && exitCode == 0 && stdout != "" {
			parsed := parseOSRelease(stdout)
			for k, v := range parsed {
				fp.Metadata[k] = v
			}
			if pretty, ok := parsed["PRETTY_NAME"]; ok {
				fp.Version = pretty
			} else if versionID, ok := parsed["VERSION_ID"]; ok {
				id := parsed["ID"]
				if id == "" {
					id = "linux"
				}
				fp.Version = fmt.Sprintf("%s %s", id, versionID)
			}
		}
	}

	if stdout, _, _, err := executor.Execute(ctx, conn, policy, "uname -m", 5*time.Second, false, false, ""); err == nil {
		if arch := strings.TrimSpace(stdout); arch != "" {
			fp.Metadata["arch"] = arch
		}
	}
	if stdout, _, _, err := executor.Execute(ctx, conn, policy, "uname -r", 5*time.Second, false, false, ""); err == nil {
		if kernel := strings.TrimSpace(stdout); kernel != "" {
			fp.Metadata["kernel"] = kernel
		}
	}

	return fp, nil
}

// parseOSRelease parses /etc/os-release's KEY=value (optionally quoted) pairs.
func parseOSRelease(content string) map[string]string {
	data := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		data[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return data
}
