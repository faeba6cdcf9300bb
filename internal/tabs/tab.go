// Package tabs implements the tab router (C10): fans each incoming
// line into one or more named sinks by filter, in COPY or MOVE mode,
// each sink holding a bounded ring of styled lines.
package tabs

import (
	"fmt"
	"regexp"
	"strings"
)

// CaptureMode controls whether a matched line also reaches "main".
type CaptureMode int

const (
	// Copy delivers the line to both the matched tab and main.
	Copy CaptureMode = iota
	// Move withholds the line from main once a tab claims it.
	Move
)

const (
	// MainTabID and LogsTabID are the permanent system tabs, per §3.
	MainTabID = "main"
	LogsTabID = "logs"
)

// TabFilter is one ordered rule a Tab tests an incoming line against.
type TabFilter struct {
	Pattern            string `json:"pattern"`
	Replacement        string `json:"replacement,omitempty"`
	MatchOnColoredText bool   `json:"match_on_colored_text,omitempty"`

	regex *regexp.Regexp
}

// Tab is a named sink: a bounded ring of styled lines plus the filters
// that route text to it.
type Tab struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Filters  []TabFilter `json:"filters,omitempty"`
	Capture  CaptureMode `json:"capture"`
	MaxLines int         `json:"max_lines"`
	System   bool        `json:"system,omitempty"`

	content []string
	unread  bool
}

// Router owns every tab and performs the per-line fan-out.
type Router struct {
	tabs      map[string]*Tab
	order     []string // insertion order, main/logs first
	activeTab string
}

// NewRouter returns a Router seeded with the permanent "main" and "logs"
// system tabs.
func NewRouter(maxLines int) *Router {
	r := &Router{tabs: make(map[string]*Tab), activeTab: MainTabID}
	r.tabs[MainTabID] = &Tab{ID: MainTabID, Name: "main", MaxLines: maxLines, System: true}
	r.tabs[LogsTabID] = &Tab{ID: LogsTabID, Name: "logs", MaxLines: maxLines, System: true}
	r.order = []string{MainTabID, LogsTabID}
	return r
}

// AddTab creates a user tab with the given filters. Filter patterns
// must compile; the first compile error aborts the whole Add.
func (r *Router) AddTab(id, name string, filters []TabFilter, capture CaptureMode, maxLines int) (*Tab, error) {
	if _, exists := r.tabs[id]; exists {
		return nil, fmt.Errorf("tabs: tab %q already exists", id)
	}

	compiled := make([]TabFilter, len(filters))
	for i, f := range filters {
		regex, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("tabs: filter %d pattern %q: %w", i, f.Pattern, err)
		}
		f.regex = regex
		compiled[i] = f
	}

	t := &Tab{ID: id, Name: name, Filters: compiled, Capture: capture, MaxLines: maxLines}
	r.tabs[id] = t
	r.order = append(r.order, id)
	return t, nil
}

// RemoveTab deletes a user tab. System tabs cannot be removed, per §3.
func (r *Router) RemoveTab(id string) error {
	t, ok := r.tabs[id]
	if !ok {
		return fmt.Errorf("tabs: no tab %q", id)
	}
	if t.System {
		return fmt.Errorf("tabs: cannot remove system tab %q", id)
	}
	delete(r.tabs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Tab returns the tab with the given ID.
func (r *Router) Tab(id string) (*Tab, bool) {
	t, ok := r.tabs[id]
	return t, ok
}

// UserTabs returns every non-system tab, in creation order, for
// persistence.
func (r *Router) UserTabs() []*Tab {
	var out []*Tab
	for _, id := range r.order {
		if id == MainTabID || id == LogsTabID {
			continue
		}
		out = append(out, r.tabs[id])
	}
	return out
}

// Route delivers one clean/colored line pair to main and every matching
// user tab, per §4.10's filter/COPY-MOVE/coalescing rules. clean is the
// ANSI-stripped text used for non-colored filter matching; styled is
// what gets appended to main, and to a matched tab unless the matching
// filter has a Replacement, whose expansion is appended instead.
// Route distributes one line to every matching user tab and, unless a
// MOVE-mode tab claimed it or suppressMain is set (a gagged trigger,
// per §4.12), appends it to main.
func (r *Router) Route(clean, styled string, suppressMain bool) {
	deliverToMain := !suppressMain

	for _, id := range r.order {
		if id == MainTabID || id == LogsTabID {
			continue
		}
		t := r.tabs[id]
		for _, f := range t.Filters {
			subject := clean
			if f.MatchOnColoredText {
				subject = styled
			}
			match := f.regex.FindStringSubmatch(subject)
			if match == nil {
				continue
			}

			line := styled
			if f.Replacement != "" {
				line = expandCaptures(f.Replacement, match)
			}
			t.append(line, id == r.activeTab)
			if t.Capture == Move {
				deliverToMain = false
			}
			break
		}
	}

	if deliverToMain {
		r.tabs[MainTabID].append(styled, r.activeTab == MainTabID)
	}
}

// AppendLog appends a line directly to the "logs" tab, bypassing
// routing. Nothing in the module calls it.
func (r *Router) AppendLog(line string) {
	r.tabs[LogsTabID].append(line, r.activeTab == LogsTabID)
}

// SetActive marks a tab active, clearing its unread flag, per §4.10.
func (r *Router) SetActive(id string) error {
	if _, ok := r.tabs[id]; !ok {
		return fmt.Errorf("tabs: no tab %q", id)
	}
	r.activeTab = id
	r.tabs[id].unread = false
	return nil
}

// Active returns the currently active tab ID.
func (r *Router) Active() string { return r.activeTab }

// append adds a line to the tab's ring buffer, coalescing consecutive
// blank lines to at most one and evicting the oldest line once MaxLines
// is exceeded, per §4.10. isActive suppresses the unread flag.
func (t *Tab) append(line string, isActive bool) {
	if strings.TrimSpace(line) == "" && len(t.content) > 0 && strings.TrimSpace(t.content[len(t.content)-1]) == "" {
		return
	}

	t.content = append(t.content, line)
	if t.MaxLines > 0 && len(t.content) > t.MaxLines {
		t.content = t.content[len(t.content)-t.MaxLines:]
	}
	if !isActive {
		t.unread = true
	}
}

// Content returns a copy of the tab's current lines.
func (t *Tab) Content() []string {
	out := make([]string, len(t.content))
	copy(out, t.content)
	return out
}

// Unread reports whether the tab has unseen content.
func (t *Tab) Unread() bool { return t.unread }

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
