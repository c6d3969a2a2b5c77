// Package hunt implements the declarative hunt-module registry and the
// orchestrator that steps a module's commands against a session, collects
// observations, and hands them to the AI pipeline (spec §4.4, §6).
package hunt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// shellMeta detects shell metacharacters in a parsed step command — a
// warning-only heuristic, never a load-time rejection (spec §6).
var shellMeta = regexp.MustCompile("[;&|`$(){}!]")

// safeShellConstructs are metacharacter uses that are expected and do not
// warrant a warning: stderr redirection and a handful of pipeline filters.
var safeShellConstructs = []*regexp.Regexp{
	regexp.MustCompile(`2>/dev/null`),
	regexp.MustCompile(`\|\s*sort`),
	regexp.MustCompile(`\|\s*grep`),
	regexp.MustCompile(`\|\s*awk`),
	regexp.MustCompile(`\|\s*head`),
	regexp.MustCompile(`\|\s*tail`),
	regexp.MustCompile(`\|\s*wc`),
	regexp.MustCompile(`;.*2>/dev/null`),
}

func isSafeShellConstruct(cmd string) bool {
	for _, p := range safeShellConstructs {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}

var stepHeading = regexp.MustCompile(`(?m)^###\s+`)
var attrLine = regexp.MustCompile(`^\*\*(\w+)\*\*:\s*(.*)$`)

type frontMatter struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	OSTypes      []string `yaml:"os_types"`
	Tags         []string `yaml:"tags"`
	SeverityHint string   `yaml:"severity_hint"`
}

// parseFrontMatter splits a "---"-delimited YAML block from the markdown
// body that follows it. Returns a zero frontMatter and the original content
// unchanged if no front matter is present.
func parseFrontMatter(content string) (frontMatter, string) {
	if !strings.HasPrefix(content, "---") {
		return frontMatter{}, content
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return frontMatter{}, content
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		slog.Warn("hunt module front matter parse failed", "error", err)
		return frontMatter{}, content
	}
	return fm, parts[2]
}

// parseSteps splits the markdown body on "### <step_id>" headings and
// extracts "**key**: value" attribute lines from each block (spec §6).
func parseSteps(body string) []models.HuntStep {
	blocks := stepHeading.Split(body, -1)
	if len(blocks) <= 1 {
		return nil
	}

	var steps []models.HuntStep
	for _, block := range blocks[1:] {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 {
			continue
		}
		stepID := strings.TrimSpace(lines[0])

		attrs := make(map[string]string)
		for _, line := range lines[1:] {
			m := attrLine.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			key := strings.ToLower(m[1])
			val := strings.Trim(strings.TrimSpace(m[2]), "`")
			attrs[key] = strings.TrimSpace(val)
		}

		command := attrs["command"]
		if command == "" {
			slog.Warn("hunt step has no command, skipping", "step_id", stepID)
			continue
		}
		if shellMeta.MatchString(command) && !isSafeShellConstruct(command) {
			slog.Warn("hunt step command contains shell metacharacters", "step_id", stepID, "command", command)
		}

		timeout := 30
		if raw, ok := attrs["timeout"]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				timeout = n
			}
		}

		requiresSudo := false
		if raw, ok := attrs["requires_sudo"]; ok {
			switch strings.ToLower(raw) {
			case "true", "yes", "1":
				requiresSudo = true
			}
		}

		description := attrs["description"]
		if description == "" {
			description = stepID
		}

		steps = append(steps, models.HuntStep{
			ID:             stepID,
			Description:    description,
			Command:        command,
			TimeoutSeconds: timeout,
			RequiresSudo:   requiresSudo,
		})
	}
	return steps
}

// ParseModule parses one markdown+front-matter hunt module file. fallbackID
// is used as both id and name when the front matter omits them — the
// teacher convention of falling back to the file's stem.
func ParseModule(content, fallbackID string) models.HuntModule {
	fm, body := parseFrontMatter(content)

	id := fm.ID
	if id == "" {
		id = fallbackID
	}
	name := fm.Name
	if name == "" {
		name = fallbackID
	}
	osTypes := fm.OSTypes
	if osTypes == nil {
		osTypes = []string{"linux"}
	}
	severityHint := fm.SeverityHint
	if severityHint == "" {
		severityHint = "medium"
	}

	return models.HuntModule{
		ID:           id,
		Name:         name,
		Description:  fm.Description,
		OSTypes:      osTypes,
		Tags:         fm.Tags,
		SeverityHint: models.ParseSeverity(severityHint),
		Steps:        parseSteps(body),
	}
}

// SerializeModule renders a HuntModule back to markdown with YAML front
// matter — the inverse of ParseModule, round-trip-equal field-for-field
// (spec's serialize-then-parse invariant).
func SerializeModule(m models.HuntModule) string {
	fm := frontMatter{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		OSTypes:      m.OSTypes,
		Tags:         m.Tags,
		SeverityHint: string(m.SeverityHint),
	}
	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		fmBytes = nil
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fmBytes)
	b.WriteString("---\n\n## Steps\n")
	for _, step := range m.Steps {
		fmt.Fprintf(&b, "\n### %s\n", step.ID)
		fmt.Fprintf(&b, "**description**: %s\n", step.Description)
		fmt.Fprintf(&b, "**command**: `%s`\n", step.Command)
		fmt.Fprintf(&b, "**timeout**: %d\n", step.TimeoutSeconds)
		fmt.Fprintf(&b, "**requires_sudo**: %s\n", strconv.FormatBool(step.RequiresSudo))
	}
	return b.String()
}

// loadModuleFile reads and parses one *.md file, returning ok=false (and
// logging) on any I/O or parse error — one bad file never blocks the rest
// of the registry from loading.
func loadModuleFile(path string) (models.HuntModule, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read hunt module file", "path", path, "error", err)
		return models.HuntModule{}, false
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	module := ParseModule(string(data), stem)
	slog.Info("loaded hunt module", "id", module.ID, "steps", len(module.Steps))
	return module, true
}

// Registry is a directory-backed, hot-reloading set of hunt modules (spec
// §6: "polled... reloaded wholesale"). Every Get/ListModules call first
// compares the directory's mtime (catches add/remove/rename), then each
// known file's mtime (catches in-place edits), reloading wholesale on any
// change — mirroring the teacher's check-then-load pattern used elsewhere
// for hot configuration.
type Registry struct {
	mu        sync.RWMutex
	dir       string
	modules   map[string]models.HuntModule
	dirMtime  time.Time
	fileMtime map[string]time.Time
}

// NewRegistry constructs a Registry bound to dir and performs the initial
// load.
func NewRegistry(dir string) *Registry {
	r := &Registry{
		dir:       dir,
		modules:   make(map[string]models.HuntModule),
		fileMtime: make(map[string]time.Time),
	}
	r.reload()
	return r
}

// reload clears and rebuilds the in-memory module set from disk.
func (r *Registry) reload() {
	info, err := os.Stat(r.dir)
	if err != nil {
		slog.Warn("hunt modules directory not found", "dir", r.dir, "error", err)
		return
	}

	matches, err := filepath.Glob(filepath.Join(r.dir, "*.md"))
	if err != nil {
		slog.Warn("failed to glob hunt modules directory", "dir", r.dir, "error", err)
		return
	}
	sort.Strings(matches)

	modules := make(map[string]models.HuntModule, len(matches))
	fileMtime := make(map[string]time.Time, len(matches))
	for _, path := range matches {
		module, ok := loadModuleFile(path)
		if !ok {
			continue
		}
		modules[module.ID] = module
		if fi, err := os.Stat(path); err == nil {
			fileMtime[path] = fi.ModTime()
		}
	}

	r.mu.Lock()
	r.modules = modules
	r.fileMtime = fileMtime
	r.dirMtime = info.ModTime()
	r.mu.Unlock()

	slog.Info("hunt module registry loaded", "count", len(modules))
}

// checkReload reloads wholesale if the directory mtime or any known file's
// mtime has changed since the last load.
func (r *Registry) checkReload() {
	info, err := os.Stat(r.dir)
	if err != nil {
		return
	}

	r.mu.RLock()
	dirMtime := r.dirMtime
	fileMtime := make(map[string]time.Time, len(r.fileMtime))
	for k, v := range r.fileMtime {
		fileMtime[k] = v
	}
	r.mu.RUnlock()

	if !info.ModTime().Equal(dirMtime) {
		slog.Info("hunt modules directory changed, reloading")
		r.reload()
		return
	}

	for path, mtime := range fileMtime {
		fi, err := os.Stat(path)
		if err != nil {
			slog.Info("hunt module file removed, reloading", "path", path)
			r.reload()
			return
		}
		if !fi.ModTime().Equal(mtime) {
			slog.Info("hunt module file changed, reloading", "path", path)
			r.reload()
			return
		}
	}
}

// Get returns the module with id, reloading first if the directory has
// changed on disk.
func (r *Registry) Get(id string) (models.HuntModule, bool) {
	r.checkReload()
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// ListModules returns every loaded module, reloading first if the
// directory has changed on disk.
func (r *Registry) ListModules() []models.HuntModule {
	r.checkReload()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.HuntModule, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reload forces a wholesale reload regardless of observed mtimes.
func (r *Registry) Reload() {
	r.reload()
}
