package council

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Conversation is one saved deliberation transcript.
type Conversation struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Question  string `json:"question"`
	Result    any    `json:"result"`
}

// ConversationSummary is a listing entry for a saved transcript.
type ConversationSummary struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Question  string `json:"question"`
}

// ConversationStore persists deliberation transcripts as one JSON file per
// conversation, named by a second-resolution timestamp id.
type ConversationStore struct {
	dir string
	now func() time.Time
}

// NewConversationStore creates a store rooted at dir. The directory is
// created on first save.
func NewConversationStore(dir string) *ConversationStore {
	return &ConversationStore{dir: dir, now: time.Now}
}

// Dir returns the store's directory.
func (s *ConversationStore) Dir() string {
	return s.dir
}

// Save writes the transcript and returns its id. Ids colliding within the
// same second get a numeric suffix, "_2" then "_3" and so on. Files are
// created exclusively so concurrent saves never clobber each other.
func (s *ConversationStore) Save(question string, result any) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating conversations directory: %w", err)
	}

	now := s.now().UTC()
	base := now.Format("20060102_150405")

	id := base
	for n := 2; ; n++ {
		f, err := os.OpenFile(filepath.Join(s.dir, id+".json"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				id = fmt.Sprintf("%s_%d", base, n)
				continue
			}
			return "", fmt.Errorf("creating conversation file: %w", err)
		}

		conversation := Conversation{
			ID:        id,
			CreatedAt: now.Format(time.RFC3339),
			Question:  question,
			Result:    result,
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(conversation); err != nil {
			f.Close()
			return "", fmt.Errorf("writing conversation: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("writing conversation: %w", err)
		}
		return id, nil
	}
}

// Load reads one saved transcript by id.
func (s *ConversationStore) Load(id string) (*Conversation, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &taggedError{msg: fmt.Sprintf("Conversation %s not found", id), kind: ErrConversationNotFound}
		}
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", id, err)
	}
	return &conv, nil
}

// List returns summaries of saved transcripts, newest first by filename.
// A limit below 1 returns everything.
func (s *ConversationStore) List(limit int) ([]ConversationSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ConversationSummary{}, nil
		}
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	summaries := make([]ConversationSummary, 0, len(ids))
	for _, id := range ids {
		conv, err := s.Load(id)
		if err != nil {
			// Skip files that vanished or fail to decode.
			continue
		}
		summaries = append(summaries, ConversationSummary{ID: conv.ID, CreatedAt: conv.CreatedAt, Question: conv.Question})
	}
	return summaries, nil
}
