package embedding

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryClasses in iteration order. Retrieval walks buckets in this order,
// so entries tied on similarity keep a stable bucket ordering.
var memoryClasses = []string{"episodic", "semantic", "procedural"}

// Entry is one stored memory with its embedding.
type Entry struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Embedding   Vector `json:"embedding,omitempty"`
	MemoryType  string `json:"memory_type"`
	Timestamp   string `json:"timestamp"`
	AccessCount int64  `json:"access_count"`
}

// StoreReceipt confirms a stored memory.
type StoreReceipt struct {
	MemoryID   string `json:"memory_id"`
	MemoryType string `json:"memory_type"`
	Mode       string `json:"mode"`
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	MemoryType string  `json:"memory_type"`
	Similarity float64 `json:"similarity"`
	Timestamp  string  `json:"timestamp"`
}

// Status reports the store's contents and mode.
type Status struct {
	Mode            string         `json:"mode"`
	EmbeddingsModel string         `json:"embeddings_model"`
	TotalMemories   int            `json:"total_memories"`
	MemoryBreakdown map[string]int `json:"memory_breakdown"`
	StoragePath     string         `json:"storage_path"`
}

// Store is a single-file JSON vector store, one bucket per memory class.
// All mutations rewrite the whole file atomically (temp file + rename), so a
// crash mid-save never leaves a truncated store behind.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by memories.json under dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, "memories.json")}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// StoreMemory embeds content and appends it to the memoryType bucket. An
// empty memoryType defaults to episodic. The id is derived from the content,
// so storing the same text twice appends two entries with the same id.
func (s *Store) StoreMemory(content, memoryType string) (*StoreReceipt, error) {
	if content == "" {
		return nil, errors.New("No content provided")
	}
	if memoryType == "" {
		memoryType = "episodic"
	}
	if !validClass(memoryType) {
		return nil, fmt.Errorf("Unknown memory type: %s", memoryType)
	}

	entry := Entry{
		ID:          fmt.Sprintf("%x", md5.Sum([]byte(content)))[:12],
		Content:     content,
		Embedding:   HashVector(content),
		MemoryType:  memoryType,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		AccessCount: 0,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	memories := s.load()
	memories[memoryType] = append(memories[memoryType], entry)
	if err := s.save(memories); err != nil {
		return nil, err
	}

	return &StoreReceipt{
		MemoryID:   entry.ID,
		MemoryType: memoryType,
		Mode:       "local",
	}, nil
}

// RetrieveMemories ranks every stored entry against query by cosine
// similarity and returns the top limit hits, most similar first. Entries
// without an embedding score 1.0 when the query is a case-insensitive
// substring of their content, else 0.0.
func (s *Store) RetrieveMemories(query string, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, errors.New("No query provided")
	}
	if limit <= 0 {
		limit = 5
	}

	queryVec := HashVector(query)
	queryLower := strings.ToLower(query)

	s.mu.Lock()
	memories := s.load()
	s.mu.Unlock()

	results := []SearchResult{}
	for _, class := range memoryClasses {
		for _, entry := range memories[class] {
			var similarity float64
			if len(entry.Embedding) > 0 {
				similarity = Cosine(queryVec, entry.Embedding)
			} else if strings.Contains(strings.ToLower(entry.Content), queryLower) {
				similarity = 1.0
			}
			results = append(results, SearchResult{
				ID:         entry.ID,
				Content:    entry.Content,
				MemoryType: class,
				Similarity: roundSimilarity(similarity),
				Timestamp:  entry.Timestamp,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// VectorStatus reports bucket totals and where the store lives.
func (s *Store) VectorStatus() *Status {
	s.mu.Lock()
	memories := s.load()
	s.mu.Unlock()

	breakdown := make(map[string]int, len(memoryClasses))
	total := 0
	for _, class := range memoryClasses {
		breakdown[class] = len(memories[class])
		total += len(memories[class])
	}

	return &Status{
		Mode:            "local",
		EmbeddingsModel: "hash-based-fallback",
		TotalMemories:   total,
		MemoryBreakdown: breakdown,
		StoragePath:     filepath.Dir(s.path),
	}
}

// load reads the store, returning empty buckets when the file is missing or
// unreadable.
func (s *Store) load() map[string][]Entry {
	memories := map[string][]Entry{}
	if data, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(data, &memories)
	}
	for _, class := range memoryClasses {
		if _, ok := memories[class]; !ok {
			memories[class] = []Entry{}
		}
	}
	return memories
}

func (s *Store) save(memories map[string][]Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(memories, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memories: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write memories: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace memories: %w", err)
	}
	return nil
}

func validClass(class string) bool {
	for _, c := range memoryClasses {
		if c == class {
			return true
		}
	}
	return false
}
