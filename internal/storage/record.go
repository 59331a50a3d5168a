package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/picatz/apistyles"
	"github.com/segmentio/ksuid"
)

// ToolCall is one tool invocation executed on the caller's side.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Record is one exchange: the user input of a turn and what came back.
type Record struct {
	Style              string          `json:"style"`
	Model              string          `json:"model,omitempty"`
	Conversation       string          `json:"conversation"`
	Request            string          `json:"request"`
	Response           string          `json:"response,omitempty"`
	ResponseID         string          `json:"response_id,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
	ToolCalls          []ToolCall      `json:"tool_calls,omitempty"`
	HistoryLen         int             `json:"history_len,omitempty"`
	Usage              apistyles.Usage `json:"usage,omitzero"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ErrInvalidConversation is returned for conversation ids that are empty or
// contain the key separator.
var ErrInvalidConversation = errors.New("storage: invalid conversation id")

const keySep = "/"

// Transcript is an append-only log of records keyed "<conversation>/<ksuid>",
// so a prefix scan returns a conversation in the order it happened.
type Transcript struct {
	backend Backend[string, Record]

	mu   sync.Mutex
	last ksuid.KSUID
}

// NewTranscript wraps backend, which must support prefix scans.
func NewTranscript(backend Backend[string, Record]) *Transcript {
	return &Transcript{backend: backend}
}

// NewConversationID returns a fresh, sortable conversation id.
func NewConversationID() string {
	return ksuid.New().String()
}

// nextID is monotonic, even for records appended within the same second.
func (t *Transcript) nextID() ksuid.KSUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := ksuid.New()
	if ksuid.Compare(id, t.last) <= 0 {
		id = t.last.Next()
	}
	t.last = id
	return id
}

func validConversation(id string) error {
	if id == "" || strings.Contains(id, keySep) {
		return fmt.Errorf("%w: %q", ErrInvalidConversation, id)
	}
	return nil
}

// Append stores rec and returns its key.
func (t *Transcript) Append(ctx context.Context, rec Record) (string, error) {
	if err := validConversation(rec.Conversation); err != nil {
		return "", err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	key := rec.Conversation + keySep + t.nextID().String()
	if err := t.backend.Set(ctx, key, rec); err != nil {
		return "", fmt.Errorf("failed to append transcript record: %w", err)
	}
	return key, nil
}

// Conversation returns the records of one conversation, oldest first.
func (t *Transcript) Conversation(ctx context.Context, id string) ([]Record, error) {
	if err := validConversation(id); err != nil {
		return nil, err
	}

	entries, err := t.backend.Scan(ctx, id+keySep)
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation %q: %w", id, err)
	}

	var records []Record
	for _, rec := range entries {
		records = append(records, rec)
	}
	return records, nil
}

// Conversations lists the distinct conversation ids, in key order.
func (t *Transcript) Conversations(ctx context.Context) ([]string, error) {
	var (
		ids   []string
		token *string
	)
	for {
		entries, next, err := t.backend.List(ctx, PageSize(100), token)
		if err != nil {
			return nil, fmt.Errorf("failed to list transcript: %w", err)
		}
		for key := range entries {
			conv, _, _ := strings.Cut(key, keySep)
			if len(ids) == 0 || ids[len(ids)-1] != conv {
				ids = append(ids, conv)
			}
		}
		if next == nil {
			return ids, nil
		}
		token = next
	}
}

// Forget deletes every record of a conversation.
func (t *Transcript) Forget(ctx context.Context, id string) error {
	if err := validConversation(id); err != nil {
		return err
	}
	if err := t.backend.DeletePrefix(ctx, id+keySep); err != nil {
		return fmt.Errorf("failed to delete conversation %q: %w", id, err)
	}
	return nil
}

// Close flushes and closes the underlying backend.
func (t *Transcript) Close(ctx context.Context) error {
	if err := t.backend.Flush(ctx); err != nil {
		return err
	}
	return t.backend.Close(ctx)
}
