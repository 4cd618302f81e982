// Package intent classifies a raw utterance into one of nine coarse
// conversational goals. The classification only scopes which tools are later
// exposed to the model; it never blocks or reroutes the turn.
//
// The classifier is a fixed, ordered rule table evaluated top to bottom with
// first-match-wins semantics. Several categories share trigger keywords
// (e.g. a message can contain both scheduling and deletion cues); the list
// order is the tie-break policy and is deliberately stable. Deterministic,
// synchronous, no network or model call.
package intent

import "strings"

// Intent is a coarse classification of conversational goal.
type Intent string

const (
	Capture    Intent = "capture"
	Brainstorm Intent = "brainstorm"
	Plan       Intent = "plan"
	Query      Intent = "query"
	Execute    Intent = "execute"
	Debrief    Intent = "debrief"
	Reflect    Intent = "reflect"
	Correct    Intent = "correct"
	Meta       Intent = "meta"
)

// rule maps a match predicate to an intent. Rules are evaluated in slice
// order; the most specific patterns come first.
type rule struct {
	intent Intent
	match  func(s string) bool
}

// captureVerbs are the verbs that, combined with a URL, signal a capture
// ("save this link", "remind me to read ...").
var captureVerbs = []string{"save", "read", "watch", "check out", "look at", "remind me", "bookmark"}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasURL(s string) bool {
	return strings.Contains(s, "http://") || strings.Contains(s, "https://") || strings.Contains(s, "www.")
}

// rules is the fixed classification policy. Order matters: explicit prefixes
// first, then URL-based capture, then meta, then correction (which must
// precede planning so "delete the 3pm block" is a correction, not a plan),
// then the generic per-category keyword sets.
var rules = []rule{
	// Explicit capture prefixes.
	{Capture, func(s string) bool {
		return strings.HasPrefix(s, "idea:") || strings.HasPrefix(s, "note:") || strings.HasPrefix(s, "capture:")
	}},
	// URL plus a capture verb.
	{Capture, func(s string) bool {
		return hasURL(s) && containsAny(s, captureVerbs)
	}},
	// Assistant-directed meta requests.
	{Meta, func(s string) bool {
		return containsAny(s, []string{"what can you do", "how do you work", "your settings", "preference", "call me ", "my name is"})
	}},
	// Corrections and undo before planning: deletion cues often co-occur
	// with scheduling vocabulary.
	{Correct, func(s string) bool {
		return containsAny(s, []string{"actually", "undo", "delete the", "delete that", "remove the", "remove that", "cancel the", "cancel that", "rename", "change the", "move the", "that's wrong", "not what i"})
	}},
	{Plan, func(s string) bool {
		return containsAny(s, []string{"schedule", "plan my", "plan out", "calendar", "tomorrow at", "today at", "block at", "block for", "book a"})
	}},
	{Execute, func(s string) bool {
		return containsAny(s, []string{"start", "begin", "let's go", "deep work", "focus session", "pomodoro", "stop the", "extend", "pause"})
	}},
	{Debrief, func(s string) bool {
		return containsAny(s, []string{"done with", "finished", "completed", "wrapped up", "log my", "log a", "worked out", "journal"})
	}},
	{Reflect, func(s string) bool {
		return containsAny(s, []string{"how am i doing", "how did i do", "progress", "stats", "streak", "level", "review my", "insight", "correlat"})
	}},
	{Brainstorm, func(s string) bool {
		return containsAny(s, []string{"brainstorm", "ideas for", "what if", "riff on", "explore", "options for", "ways to"})
	}},
	// Generic capture verbs without a URL.
	{Capture, func(s string) bool {
		return containsAny(s, []string{"remember", "jot down", "write down", "save this", "add a note", "capture"})
	}},
}

// Classify maps a raw utterance to an Intent. Unmatched input defaults to
// Query, whose tool scope is everything by construction.
func Classify(utterance string) Intent {
	s := strings.ToLower(strings.TrimSpace(utterance))
	for _, r := range rules {
		if r.match(s) {
			return r.intent
		}
	}
	return Query
}
