// Package triggers implements the trigger engine (C8): regex matching
// against incoming lines in priority order, with gag/colorize/once
// semantics and $0..$n command expansion.
package triggers

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

// ErrNotFound is returned by Remove when no trigger has the given ID.
var ErrNotFound = errors.New("triggers: not found")

// Colorize overrides the display styling of a matched line.
type Colorize struct {
	FG   string `json:"fg,omitempty"`
	BG   string `json:"bg,omitempty"`
	Bold bool   `json:"bold,omitempty"`
}

// Trigger is a pattern-action rule evaluated against every incoming
// line, per §3/§4.8.
type Trigger struct {
	ID       string    `json:"id"`
	Pattern  string    `json:"pattern"`
	Priority int32     `json:"priority"`
	Enabled  bool      `json:"enabled"`
	Once     bool      `json:"once"`
	Gag      bool      `json:"gag"`
	Colorize *Colorize `json:"colorize,omitempty"`
	Commands []string  `json:"commands"`

	regex *regexp.Regexp
	seq   int // insertion order, for stable same-priority ordering
}

// Result is what one Evaluate call returns to the pipeline orchestrator.
type Result struct {
	Gagged        bool
	Colorize      *Colorize
	FiredTriggers []string
	Commands      []string // already $-expanded, not yet alias/variable processed
}

// Manager holds the trigger list and tracks "once" firing state.
type Manager struct {
	Triggers []*Trigger `json:"triggers"`

	nextSeq  int
	fired    map[string]bool
	filePath string
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{fired: make(map[string]bool)}
}

// Add compiles pattern and appends a new enabled trigger. Ties in
// Priority are broken by insertion order, per §3.
func (m *Manager) Add(pattern string, priority int32, commands []string) (*Trigger, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("triggers: compile pattern %q: %w", pattern, err)
	}

	t := &Trigger{
		ID:       uuid.New().String(),
		Pattern:  pattern,
		Priority: priority,
		Enabled:  true,
		Commands: commands,
		regex:    regex,
		seq:      m.nextSeq,
	}
	m.nextSeq++
	m.Triggers = append(m.Triggers, t)
	return t, nil
}

// Adopt appends an already-constructed trigger (e.g. unmarshaled from a
// persisted document elsewhere) as the next-in-order trigger. The
// caller must have already called t.Recompile.
func (m *Manager) Adopt(t *Trigger) {
	t.seq = m.nextSeq
	m.nextSeq++
	m.Triggers = append(m.Triggers, t)
}

// Remove deletes the trigger with the given ID.
func (m *Manager) Remove(id string) error {
	for i, t := range m.Triggers {
		if t.ID == id {
			m.Triggers = append(m.Triggers[:i], m.Triggers[i+1:]...)
			delete(m.fired, id)
			return nil
		}
	}
	return fmt.Errorf("triggers: remove %q: %w", id, ErrNotFound)
}

// ResetFired clears once-trigger firing state. The orchestrator does
// not call it.
func (m *Manager) ResetFired() {
	m.fired = make(map[string]bool)
}

// sorted returns the triggers in evaluation order: descending priority,
// ties broken by ascending insertion order, per §3/§8.
func (m *Manager) sorted() []*Trigger {
	out := make([]*Trigger, len(m.Triggers))
	copy(out, m.Triggers)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Evaluate runs every enabled trigger against line (already ANSI-stripped
// by the caller per §4.12) and accumulates the gag/colorize/commands
// result per §4.8's steps 1-4. Colorize is last-writer-wins among
// triggers that set it, in evaluation order (descending priority); gag
// accumulates across every match regardless of priority — see
// DESIGN.md's "gag + higher-priority colorize" decision.
func (m *Manager) Evaluate(line string) Result {
	if m.fired == nil {
		m.fired = make(map[string]bool)
	}

	var result Result
	for _, t := range m.sorted() {
		if !t.Enabled {
			continue
		}
		if t.Once && m.fired[t.ID] {
			continue
		}
		if t.regex == nil {
			continue
		}

		match := t.regex.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		m.fired[t.ID] = true
		result.FiredTriggers = append(result.FiredTriggers, t.ID)
		result.Gagged = result.Gagged || t.Gag
		if t.Colorize != nil {
			result.Colorize = t.Colorize
		}
		for _, cmdTemplate := range t.Commands {
			result.Commands = append(result.Commands, expandCaptures(cmdTemplate, match))
		}
	}
	return result
}

var captureExpand = regexp.MustCompile(`\$(\d+)`)

// expandCaptures replaces $0..$n in template with the corresponding
// FindStringSubmatch entries ($0 is the whole match).
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

// GetTriggersPath returns the default on-disk triggers file location,
// honoring the DIKUCLIENT_CONFIG_DIR override. Persistence itself is a
// collaborator concern per §6; Load and Save use this path, while the
// headless demo binary reads triggers from config.Document instead.
func GetTriggersPath() (string, error) {
	var configDir string
	if env := os.Getenv("DIKUCLIENT_CONFIG_DIR"); env != "" {
		configDir = env
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("triggers: home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "dikuclient")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("triggers: create config dir: %w", err)
	}
	return filepath.Join(configDir, "triggers.json"), nil
}

// Load reads triggers from the default path.
func Load() (*Manager, error) {
	path, err := GetTriggersPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads triggers from a specific path (for tests).
func LoadFromPath(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m := NewManager()
			m.filePath = path
			return m, nil
		}
		return nil, fmt.Errorf("triggers: read %s: %w", path, err)
	}

	var m Manager
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("triggers: parse %s: %w", path, err)
	}
	m.filePath = path
	m.fired = make(map[string]bool)

	valid := m.Triggers[:0]
	for _, t := range m.Triggers {
		if err := t.compile(); err != nil {
			log.Printf("triggers: skipping %s: invalid pattern: %v", t.ID, err)
			continue
		}
		t.seq = len(valid)
		valid = append(valid, t)
	}
	m.Triggers = valid
	m.nextSeq = len(m.Triggers)
	return &m, nil
}

func (t *Trigger) compile() error {
	regex, err := regexp.Compile(t.Pattern)
	if err != nil {
		return err
	}
	t.regex = regex
	return nil
}

// Recompile compiles t.Pattern into its matcher. Callers that
// unmarshal a Trigger outside of LoadFromPath (e.g. a document that
// embeds triggers inside a larger structure) must call this before the
// trigger is evaluated.
func (t *Trigger) Recompile() error {
	return t.compile()
}

// Save persists triggers to disk.
func (m *Manager) Save() error {
	path := m.filePath
	if path == "" {
		var err error
		path, err = GetTriggersPath()
		if err != nil {
			return err
		}
		m.filePath = path
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("triggers: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("triggers: write %s: %w", path, err)
	}
	return nil
}
