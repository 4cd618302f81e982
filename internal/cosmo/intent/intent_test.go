package intent

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		utterance string
		want      Intent
	}{
		// Explicit prefixes win over everything else.
		{"idea: launch campaign", Capture},
		{"note: the deadline moved", Capture},
		{"idea: schedule more deep work", Capture},

		// URL + capture verb.
		{"save https://example.com/post for later", Capture},
		{"remind me to read https://blog.example.com", Capture},

		// Generic capture.
		{"remember that Alice prefers mornings", Capture},
		{"jot down milk and eggs", Capture},

		// Planning.
		{"schedule a writing block at 10am", Plan},
		{"plan my afternoon", Plan},
		{"book a review session tomorrow at 9", Plan},

		// Correction precedes planning when cues overlap.
		{"delete the 3pm block", Correct},
		{"actually move the standup to 11", Correct},
		{"cancel that meeting", Correct},

		// Execution.
		{"start a deep work session", Execute},
		{"extend my focus session by 20 minutes", Execute},

		// Debrief.
		{"done with the draft", Debrief},
		{"log my workout", Debrief},

		// Reflection.
		{"how am i doing this week", Reflect},
		{"show my streak", Reflect},

		// Brainstorm.
		{"brainstorm names for the newsletter", Brainstorm},
		{"give me some ideas for the launch", Brainstorm},

		// Meta.
		{"what can you do", Meta},
		{"my name is Dana", Meta},

		// Default.
		{"what's on today", Query},
		{"", Query},
		{"tell me about atoms", Query},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			if got := Classify(tt.utterance); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	// Same input, same output, every time.
	const msg = "schedule a writing block at 10am and delete the old one"
	first := Classify(msg)
	for i := 0; i < 100; i++ {
		if got := Classify(msg); got != first {
			t.Fatalf("iteration %d: got %q, want %q", i, got, first)
		}
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	if got := Classify("IDEA: Big Launch"); got != Capture {
		t.Errorf("got %q, want capture", got)
	}
	if got := Classify("Schedule A Call"); got != Plan {
		t.Errorf("got %q, want plan", got)
	}
}
