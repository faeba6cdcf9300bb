// Package aliases implements the alias engine (C9): regex matching
// against outgoing command strings, with $0..$n capture expansion and a
// recursive-expansion depth guard.
package aliases

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Remove when no alias has the given ID.
var ErrNotFound = errors.New("aliases: not found")

// DefaultMaxExpansionDepth bounds recursive alias expansion (§4.9): once
// a command chain's expansion depth exceeds this, further expansion is
// suppressed and the last form is passed through.
const DefaultMaxExpansionDepth = 8

// Alias is a regex-matched rule fired on outgoing commands, full-string
// anchored, per §3/§4.9.
type Alias struct {
	ID       string   `json:"id"`
	Pattern  string   `json:"pattern"`
	Priority int32    `json:"priority"`
	Enabled  bool     `json:"enabled"`
	Commands []string `json:"commands"`

	regex *regexp.Regexp
	seq   int
}

// Manager manages all aliases and the recursive-expansion guard.
type Manager struct {
	Aliases []*Alias `json:"aliases"`

	// MaxDepth overrides DefaultMaxExpansionDepth when non-zero.
	MaxDepth int `json:"max_depth,omitempty"`

	nextSeq  int
	filePath string
}

// NewManager creates a new alias manager.
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) maxDepth() int {
	if m.MaxDepth > 0 {
		return m.MaxDepth
	}
	return DefaultMaxExpansionDepth
}

// Add compiles pattern and appends a new enabled alias. Ties in Priority
// are broken by insertion order.
func (m *Manager) Add(pattern string, priority int32, commands []string) (*Alias, error) {
	anchored := anchor(pattern)
	regex, err := regexp.Compile(anchored)
	if err != nil {
		return nil, fmt.Errorf("aliases: compile pattern %q: %w", pattern, err)
	}

	a := &Alias{
		ID:       uuid.New().String(),
		Pattern:  pattern,
		Priority: priority,
		Enabled:  true,
		Commands: commands,
		regex:    regex,
		seq:      m.nextSeq,
	}
	m.nextSeq++
	m.Aliases = append(m.Aliases, a)
	return a, nil
}

// Adopt appends an already-constructed alias (e.g. unmarshaled from a
// persisted document elsewhere) as the next-in-order alias. The caller
// must have already called a.Recompile.
func (m *Manager) Adopt(a *Alias) {
	a.seq = m.nextSeq
	m.nextSeq++
	m.Aliases = append(m.Aliases, a)
}

// Remove deletes the alias with the given ID.
func (m *Manager) Remove(id string) error {
	for i, a := range m.Aliases {
		if a.ID == id {
			m.Aliases = append(m.Aliases[:i], m.Aliases[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("aliases: remove %q: %w", id, ErrNotFound)
}

func (m *Manager) sorted() []*Alias {
	out := make([]*Alias, len(m.Aliases))
	copy(out, m.Aliases)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// anchor wraps pattern so matching is always full-string, per §3's
// "matched with full-anchor semantics (entire command string)".
func anchor(pattern string) string {
	return `\A(?:` + pattern + `)\z`
}

// Expand runs cmd against enabled aliases in descending-priority order
// and returns the first match's expanded commands. depth is the
// caller's current expansion depth (0 for a fresh, user-issued command);
// once it reaches the manager's max, expansion is suppressed and cmd is
// passed through unchanged, per §4.9.
func (m *Manager) Expand(cmd string, depth int) (commands []string, matched bool) {
	if depth >= m.maxDepth() {
		return []string{cmd}, false
	}

	for _, a := range m.sorted() {
		if !a.Enabled || a.regex == nil {
			continue
		}
		match := a.regex.FindStringSubmatch(cmd)
		if match == nil {
			continue
		}

		var out []string
		for _, template := range a.Commands {
			out = append(out, expandCaptures(template, match))
		}
		return out, true
	}
	return []string{cmd}, false
}

// ExpandRecursive expands cmd and every alias-yielded command that
// itself matches another alias, up to the manager's max depth. It is
// the entry point C12 uses for the full outbound alias pass.
func (m *Manager) ExpandRecursive(cmd string) []string {
	return m.expandRecursive(cmd, 0)
}

func (m *Manager) expandRecursive(cmd string, depth int) []string {
	expanded, matched := m.Expand(cmd, depth)
	if !matched {
		return []string{cmd}
	}

	var out []string
	for _, c := range expanded {
		out = append(out, m.expandRecursive(c, depth+1)...)
	}
	return out
}

var captureExpand = regexp.MustCompile(`\$(\d+)`)

func expandCaptures(template string, match []string) string {
	return captureExpand.ReplaceAllStringFunc(template, func(tok string) string {
		var idx int
		fmt.Sscanf(tok[1:], "%d", &idx)
		if idx >= 0 && idx < len(match) {
			return match[idx]
		}
		return ""
	})
}

// GetAliasesPath returns the default on-disk aliases file location.
func GetAliasesPath() (string, error) {
	var configDir string
	if env := os.Getenv("DIKUCLIENT_CONFIG_DIR"); env != "" {
		configDir = env
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("aliases: home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "dikuclient")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("aliases: create config dir: %w", err)
	}
	return filepath.Join(configDir, "aliases.json"), nil
}

// Load reads aliases from the default path.
func Load() (*Manager, error) {
	path, err := GetAliasesPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads aliases from a specific path (for tests).
func LoadFromPath(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m := NewManager()
			m.filePath = path
			return m, nil
		}
		return nil, fmt.Errorf("aliases: read %s: %w", path, err)
	}

	var m Manager
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("aliases: parse %s: %w", path, err)
	}
	m.filePath = path

	valid := m.Aliases[:0]
	for _, a := range m.Aliases {
		if err := a.compile(); err != nil {
			log.Printf("aliases: skipping %s: invalid pattern: %v", a.ID, err)
			continue
		}
		a.seq = len(valid)
		valid = append(valid, a)
	}
	m.Aliases = valid
	m.nextSeq = len(m.Aliases)
	return &m, nil
}

func (a *Alias) compile() error {
	regex, err := regexp.Compile(anchor(a.Pattern))
	if err != nil {
		return err
	}
	a.regex = regex
	return nil
}

// Recompile compiles a.Pattern into its matcher. Callers that
// unmarshal an Alias outside of LoadFromPath (e.g. a document that
// embeds aliases inside a larger structure) must call this before the
// alias is evaluated.
func (a *Alias) Recompile() error {
	return a.compile()
}

// Save persists aliases to disk.
func (m *Manager) Save() error {
	path := m.filePath
	if path == "" {
		var err error
		path, err = GetAliasesPath()
		if err != nil {
			return err
		}
		m.filePath = path
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("aliases: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("aliases: write %s: %w", path, err)
	}
	return nil
}
