package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
)

// Conversation is one persisted thread, keyed by an id supplied by the
// originating channel so external channels can resume it across turns.
// Messages are append-only; LinkedAtoms is the deduplicated set of atom
// uuids created during the conversation.
type Conversation struct {
	ID          string
	Channel     string
	Messages    []llm.Message
	Summary     string
	LinkedAtoms []string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// saved is how many leading messages are already persisted. Save only
	// appends rows beyond this point, which keeps the table append-only.
	saved int
}

// Append adds a message to the in-memory buffer. It never touches persisted
// rows.
func (c *Conversation) Append(m llm.Message) {
	c.Messages = append(c.Messages, m)
}

// LinkAtom records an atom uuid as a linked entity, deduplicated.
func (c *Conversation) LinkAtom(uuid string) {
	for _, existing := range c.LinkedAtoms {
		if existing == uuid {
			return
		}
	}
	c.LinkedAtoms = append(c.LinkedAtoms, uuid)
}

// Conversations is the conversation repository.
type Conversations struct {
	store *Store
}

// NewConversations returns the conversation repository backed by s.
func NewConversations(s *Store) *Conversations {
	return &Conversations{store: s}
}

// Get loads a conversation with its full message history. Returns
// sql.ErrNoRows (wrapped) when the id is unknown.
func (r *Conversations) Get(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{ID: id}
	err := r.store.db.QueryRowContext(ctx, `
		SELECT channel, summary, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&c.Channel, &c.Summary, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m llm.Message
		var role, callsJSON string
		if err := rows.Scan(&role, &m.Content, &callsJSON, &m.ToolCallID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = llm.Role(role)
		if callsJSON != "" {
			if err := json.Unmarshal([]byte(callsJSON), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	c.saved = len(c.Messages)

	atomRows, err := r.store.db.QueryContext(ctx, `
		SELECT atom_uuid FROM conversation_atoms WHERE conversation_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load linked atoms for %s: %w", id, err)
	}
	defer atomRows.Close()
	for atomRows.Next() {
		var uuid string
		if err := atomRows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("scan linked atom: %w", err)
		}
		c.LinkedAtoms = append(c.LinkedAtoms, uuid)
	}
	if err := atomRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked atoms: %w", err)
	}

	return c, nil
}

// GetOrCreate loads the conversation or creates an empty one for the channel.
func (r *Conversations) GetOrCreate(ctx context.Context, id, channel string) (*Conversation, error) {
	c, err := r.Get(ctx, id)
	if err == nil {
		return c, nil
	}
	now := time.Now()
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO conversations (id, channel, summary, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
	`, id, channel, now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation %s: %w", id, err)
	}
	return &Conversation{ID: id, Channel: channel, CreatedAt: now, UpdatedAt: now}, nil
}

// Save persists everything appended since the last load or Save: new message
// rows (append-only), new linked atoms, and the summary. Runs in one
// transaction so a crash never leaves a half-written turn.
func (r *Conversations) Save(ctx context.Context, c *Conversation) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET summary = ?, updated_at = ? WHERE id = ?
	`, c.Summary, now, c.ID); err != nil {
		return fmt.Errorf("update conversation %s: %w", c.ID, err)
	}

	for i := c.saved; i < len(c.Messages); i++ {
		m := c.Messages[i]
		callsJSON := ""
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			callsJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages
				(conversation_id, seq, role, content, tool_calls, tool_call_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, i, string(m.Role), m.Content, callsJSON, m.ToolCallID, now); err != nil {
			return fmt.Errorf("append message %d: %w", i, err)
		}
	}

	for _, uuid := range c.LinkedAtoms {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_atoms (conversation_id, atom_uuid)
			VALUES (?, ?)
		`, c.ID, uuid); err != nil {
			return fmt.Errorf("link atom %s: %w", uuid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	c.saved = len(c.Messages)
	c.UpdatedAt = now
	return nil
}

// LatestSummary returns the summary of the most recently updated
// conversation, or "" when there is none. Used by the context assembler.
func (r *Conversations) LatestSummary(ctx context.Context) (string, error) {
	var summary string
	err := r.store.db.QueryRowContext(ctx, `
		SELECT summary FROM conversations
		WHERE summary != ''
		ORDER BY updated_at DESC LIMIT 1
	`).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest summary: %w", err)
	}
	return summary, nil
}
