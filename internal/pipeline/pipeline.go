// Package pipeline implements the orchestrator (C12): it sequences
// C1→C2→C3/C4/C8→C10 for inbound text and C9→C7→C6 for outbound
// commands, owning the line-assembly buffer and the internal command
// directives.
package pipeline

import (
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/anicolao/dikuclient/internal/aliases"
	"github.com/anicolao/dikuclient/internal/contextqueue"
	"github.com/anicolao/dikuclient/internal/tabs"
	"github.com/anicolao/dikuclient/internal/triggers"
	"github.com/anicolao/dikuclient/internal/variables"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes SGR escape sequences, producing the clean form used
// for trigger/context-rule matching, per §4.12.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// defaultHistoryLimit bounds the alias-history record the outbound path
// keeps, per §4.12's "record alias history (bounded)".
const defaultHistoryLimit = 200

// RoomStateFunc supplies the current room/zone context for C11.
type RoomStateFunc func() contextqueue.RoomState

// Orchestrator wires the automation layer together for one connection.
type Orchestrator struct {
	Triggers     *triggers.Manager
	Aliases      *aliases.Manager
	Tabs         *tabs.Router
	ContextQueue *contextqueue.Queue
	Variables    *variables.Store
	RoomState    RoomStateFunc
	Send         func(command string)

	// OnSound is invoked for each "#sound <id>" directive, if set.
	OnSound func(SoundEvent)

	// OnTabUpdate is invoked after each routed line, if set, so a C13
	// observer can republish the tabs' current content.
	OnTabUpdate func()

	// OnLine is invoked with each raw (styled) line assembled from Feed,
	// before trigger/context/tab processing, if set.
	OnLine func(raw string)

	// OnContextQueueUpdate is invoked whenever a processed line may have
	// changed the context queue's contents, if set.
	OnContextQueueUpdate func()

	// Logger receives directive/dispatch diagnostics. Defaults to
	// log.Default() when nil.
	Logger *log.Logger

	HistoryLimit int

	lineBuf strings.Builder
	history []string
}

// Feed appends raw decoded text from C6 to the line-assembly buffer and
// processes every complete line it yields, per §4.12 inbound step 1-2.
func (o *Orchestrator) Feed(chunk string) {
	for _, r := range chunk {
		if r == '\n' {
			line := strings.TrimSuffix(o.lineBuf.String(), "\r")
			o.lineBuf.Reset()
			o.processLine(line)
			continue
		}
		o.lineBuf.WriteRune(r)
	}
}

func (o *Orchestrator) processLine(raw string) {
	if o.OnLine != nil {
		o.OnLine(raw)
	}

	clean := StripANSI(raw)

	var result triggers.Result
	if o.Triggers != nil {
		result = o.Triggers.Evaluate(clean)
	}

	for _, cmd := range result.Commands {
		o.Outbound(cmd)
	}

	if !result.Gagged && o.ContextQueue != nil && o.RoomState != nil {
		o.ContextQueue.EvaluateLine(clean, o.RoomState(), time.Now())
		if o.OnContextQueueUpdate != nil {
			o.OnContextQueueUpdate()
		}
	}

	if o.Tabs != nil {
		o.Tabs.Route(clean, raw, result.Gagged)
		if o.OnTabUpdate != nil {
			o.OnTabUpdate()
		}
	}
}

// Outbound runs cmd through the outbound path: internal directives,
// alias history, C9 expansion, C7 substitution, then C6.send, per
// §4.12's outbound steps and §6's directive list.
func (o *Orchestrator) Outbound(cmd string) {
	if handled := o.handleDirective(cmd); handled {
		return
	}

	o.recordHistory(cmd)

	expanded := []string{cmd}
	if o.Aliases != nil {
		expanded = o.Aliases.ExpandRecursive(cmd)
	}

	for _, c := range expanded {
		final := c
		if o.Variables != nil {
			final = o.Variables.Substitute(c)
		}
		if o.Send != nil {
			o.Send(final)
		}
	}
}

func (o *Orchestrator) recordHistory(cmd string) {
	o.history = append(o.history, cmd)
	limit := o.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if len(o.history) > limit {
		o.history = o.history[len(o.history)-limit:]
	}
}

// History returns the bounded outbound command history, oldest first.
func (o *Orchestrator) History() []string {
	out := make([]string, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// SoundEvent is raised by the "#sound" directive for an audio
// collaborator (§6) to observe.
type SoundEvent struct {
	SoundID string
}

// handleDirective intercepts "#var", "#unvar", "#vars", and "#sound"
// locally, per §6. It returns true if cmd was a recognized directive.
func (o *Orchestrator) handleDirective(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "#var":
		if len(fields) < 3 || o.Variables == nil {
			o.logf("pipeline: #var requires a name and value, got %q", cmd)
			return true
		}
		o.Variables.Set(fields[1], variables.String(strings.Join(fields[2:], " ")), variables.SourceUser)
		return true
	case "#unvar":
		if len(fields) < 2 || o.Variables == nil {
			o.logf("pipeline: #unvar requires a name, got %q", cmd)
			return true
		}
		o.Variables.Delete(fields[1], variables.SourceUser)
		return true
	case "#vars":
		// Inspection is surfaced through C13, not returned here; the
		// directive is still intercepted so it never reaches the server.
		return true
	case "#sound":
		if o.OnSound != nil && len(fields) >= 2 {
			o.OnSound(SoundEvent{SoundID: fields[1]})
		}
		return true
	default:
		return false
	}
}
