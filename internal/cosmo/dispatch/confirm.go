// Package dispatch routes tool calls to domain operations and owns the
// confirmation gate for irreversible tools.
//
// Security invariants:
//   - The model only proposes tool calls; irreversible ones do not execute
//     until a human approves the stored confirmation out of band.
//   - A pending confirmation is acted on at most once: the first Take wins,
//     whether that is an approval or a rejection.
//   - A tool handler's failure never escapes the dispatcher; the orchestrator
//     always receives a structured payload it can feed back into the loop.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultConfirmTTL is how long a pending confirmation remains approvable.
const DefaultConfirmTTL = 300 * time.Second

// PendingConfirmation is one held irreversible call. Args carry the original
// arguments with the confirmed flag already merged in, so approval is a plain
// re-dispatch.
type PendingConfirmation struct {
	ID          string
	Tool        string
	Args        map[string]any
	Description string
	CreatedAt   time.Time
}

// Confirmations is the pending-confirmation table. A confirmation created on
// one channel may be approved from another, so every operation takes the
// lock; insert, consume, and expiry-sweep are serialized against each other.
type Confirmations struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]*PendingConfirmation

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewConfirmations creates an empty table. Pass 0 to use DefaultConfirmTTL.
func NewConfirmations(ttl time.Duration) *Confirmations {
	if ttl == 0 {
		ttl = DefaultConfirmTTL
	}
	return &Confirmations{
		ttl:     ttl,
		pending: make(map[string]*PendingConfirmation),
		now:     time.Now,
	}
}

// generateID returns a short, cryptographically random hex id (6 bytes = 12
// hex chars).
func generateID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate confirmation id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Add stores a new pending confirmation and returns it. The expiry sweep
// runs first so the table never grows unbounded between sweeper ticks.
func (c *Confirmations) Add(tool string, args map[string]any, description string) (*PendingConfirmation, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	p := &PendingConfirmation{
		ID:          id,
		Tool:        tool,
		Args:        args,
		Description: description,
		CreatedAt:   c.now(),
	}
	c.pending[id] = p
	return p, nil
}

// Take consumes a pending confirmation. The entry is removed whether the
// caller goes on to execute or reject it; a second Take of the same id
// reports not found, as does any expired entry.
func (c *Confirmations) Take(id string) (*PendingConfirmation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	p, ok := c.pending[id]
	if !ok {
		return nil, false
	}
	delete(c.pending, id)
	return p, true
}

// Sweep removes expired entries and returns how many were purged.
func (c *Confirmations) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *Confirmations) sweepLocked() int {
	cutoff := c.now().Add(-c.ttl)
	purged := 0
	for id, p := range c.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(c.pending, id)
			purged++
		}
	}
	return purged
}

// Len reports the number of pending entries (after sweeping).
func (c *Confirmations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.pending)
}

// StartSweeper purges expired confirmations every interval until ctx is
// cancelled. Take and Add also sweep on access, so the background task is a
// backstop for idle periods, not a correctness requirement.
func (c *Confirmations) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					slog.Debug("swept expired confirmations", "count", n)
				}
			}
		}
	}()
}
