package contextqueue

import (
	"testing"
	"time"
)

func addSimpleRule(t *testing.T, q *Queue, id, command string) *Rule {
	t.Helper()
	r := &Rule{
		ID:      id,
		Enabled: true,
		Pattern: "^" + command + "$",
		Scope:   Scope{Kind: ScopeWorld},
		Command: command,
		TTL:     Permanent,
	}
	if err := q.AddRule(r); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	return r
}

// Exact scenario from §8: maxQueueSize=3, adding a,b,c,a,d leaves the
// queue newest-first [d,a,c]; executing index 0 runs d and leaves the
// queue unchanged since TTL != OneTime.
func TestScenarioQueueEvictionAndDedup(t *testing.T) {
	q := NewQueue(3)
	for _, cmd := range []string{"a", "b", "c"} {
		addSimpleRule(t, q, "rule_"+cmd, cmd)
	}
	addSimpleRule(t, q, "rule_d", "d")

	now := time.Unix(0, 0)
	rs := RoomState{RoomID: "r1"}
	for _, line := range []string{"a", "b", "c", "a", "d"} {
		q.EvaluateLine(line, rs, now)
	}

	entries := q.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{"d", "a", "c"}
	for i, w := range want {
		if entries[i].Command != w {
			t.Errorf("position %d: got %q, want %q", i, entries[i].Command, w)
		}
	}

	cmd, err := q.Execute(0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if cmd != "d" {
		t.Errorf("got %q, want d", cmd)
	}
	if len(q.Entries()) != 3 {
		t.Error("expected queue unchanged after executing a non-OneTime entry")
	}
}

func TestOneTimeEntryRemovedAfterExecute(t *testing.T) {
	q := NewQueue(10)
	r := addSimpleRule(t, q, "rule_a", "a")
	r.TTL = OneTime

	q.EvaluateLine("a", RoomState{}, time.Unix(0, 0))
	if _, err := q.Execute(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Entries()) != 0 {
		t.Error("expected OneTime entry to be removed after execution")
	}
}

func TestRoomScopedRuleRequiresMatchingRoom(t *testing.T) {
	q := NewQueue(10)
	r := &Rule{
		ID:      "door",
		Enabled: true,
		Pattern: "^door creaks$",
		Scope:   Scope{Kind: ScopeRoom, IDs: []string{"r1"}},
		Command: "close door",
	}
	if err := q.AddRule(r); err != nil {
		t.Fatal(err)
	}

	q.EvaluateLine("door creaks", RoomState{RoomID: "r2"}, time.Unix(0, 0))
	if len(q.Entries()) != 0 {
		t.Error("expected rule scoped to r1 to not fire in r2")
	}

	q.EvaluateLine("door creaks", RoomState{RoomID: "r1"}, time.Unix(0, 0))
	if len(q.Entries()) != 1 {
		t.Error("expected rule to fire in its own room")
	}
}

func TestUntilRoomChangeExpiresOnRoomEnter(t *testing.T) {
	q := NewQueue(10)
	r := &Rule{
		ID:      "flee",
		Enabled: true,
		Pattern: "^danger$",
		Scope:   Scope{Kind: ScopeWorld},
		Command: "flee",
		TTL:     UntilRoomChange,
	}
	q.AddRule(r)

	now := time.Unix(0, 0)
	q.EvaluateLine("danger", RoomState{RoomID: "r1"}, now)
	if len(q.Entries()) != 1 {
		t.Fatal("expected entry to be enqueued")
	}

	q.OnRoomEnter(RoomState{RoomID: "r2"}, now)
	if len(q.Entries()) != 0 {
		t.Error("expected UntilRoomChange entry to expire on room change")
	}
}

func TestPermanentRuleFiresOncePerRoomEnter(t *testing.T) {
	q := NewQueue(10)
	r := &Rule{
		ID:      "greet",
		Enabled: true,
		Scope:   Scope{Kind: ScopeRoom, IDs: []string{"r1"}},
		Command: "look",
	}
	q.AddRule(r)

	now := time.Unix(0, 0)
	q.OnRoomEnter(RoomState{RoomID: "r1"}, now)
	q.OnRoomEnter(RoomState{RoomID: "r1"}, now)
	if len(q.Entries()) != 1 {
		t.Fatalf("got %d entries, want re-entry to dedup rather than duplicate", len(q.Entries()))
	}
	if q.Entries()[0].TTL != UntilRoomChange {
		t.Errorf("expected room-scoped permanent rule to derive UntilRoomChange TTL, got %v", q.Entries()[0].TTL)
	}
}

func TestFixedTimeSweepExpiresPastDeadline(t *testing.T) {
	q := NewQueue(10)
	r := &Rule{
		ID:           "buff",
		Enabled:      true,
		Pattern:      "^buffed$",
		Scope:        Scope{Kind: ScopeWorld},
		Command:      "recast",
		TTL:          FixedTime,
		FixedTimeFor: time.Minute,
	}
	q.AddRule(r)

	start := time.Unix(0, 0)
	q.EvaluateLine("buffed", RoomState{}, start)
	if len(q.Entries()) != 1 {
		t.Fatal("expected entry to be enqueued")
	}

	q.SweepFixedTime(start.Add(30 * time.Second))
	if len(q.Entries()) != 1 {
		t.Error("expected entry to survive sweep before deadline")
	}

	q.SweepFixedTime(start.Add(2 * time.Minute))
	if len(q.Entries()) != 0 {
		t.Error("expected entry to expire after its deadline")
	}
}

func TestCaptureGroupSubstitutionInCommand(t *testing.T) {
	q := NewQueue(10)
	r := &Rule{
		ID:      "loot",
		Enabled: true,
		Pattern: `^(\w+) drops a (\w+)$`,
		Scope:   Scope{Kind: ScopeWorld},
		Command: "get $2 from $1",
	}
	q.AddRule(r)

	q.EvaluateLine("orc drops a sword", RoomState{}, time.Unix(0, 0))
	entries := q.Entries()
	if len(entries) != 1 || entries[0].Command != "get sword from orc" {
		t.Fatalf("got %+v", entries)
	}
}

func TestDisabledRuleNeverFires(t *testing.T) {
	q := NewQueue(10)
	r := addSimpleRule(t, q, "rule_a", "a")
	r.Enabled = false

	q.EvaluateLine("a", RoomState{}, time.Unix(0, 0))
	if len(q.Entries()) != 0 {
		t.Error("expected disabled rule to not fire")
	}
}
