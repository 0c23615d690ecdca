package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/utils"
	"github.com/brookwillow/kiwi/pkg/vecstore"
)

const (
	shortTermCollection = "short_term_memories"
	longTermCollection  = "long_term_memories"
)

// Manager owns the short-term conversation ring and the long-term profile.
// Writes to the ring and the vector store are serialized by the manager mutex
// so list order and vector ids stay consistent; reads are concurrent.
type Manager struct {
	mu       sync.RWMutex
	entries  []ShortTermEntry
	longTerm LongTermRecord

	capacity         int
	triggerCount     int
	maxHistoryRounds int
	scoreThreshold   float32
	longTermFile     string

	appendCount int
	lastSTMID   int64

	store    *vecstore.Store
	embedder vecstore.Embedder
	llm      providers.LLMProvider
}

func NewManager(cfg config.MemoryConfig, store *vecstore.Store, embedder vecstore.Embedder, llm providers.LLMProvider) *Manager {
	m := &Manager{
		capacity:         cfg.ShortTermCapacity,
		triggerCount:     cfg.TriggerCount,
		maxHistoryRounds: cfg.MaxHistoryRounds,
		scoreThreshold:   float32(cfg.ScoreThreshold),
		longTermFile:     cfg.LongTermFile,
		longTerm:         emptyLongTerm(),
		store:            store,
		embedder:         embedder,
		llm:              llm,
	}
	m.loadLongTerm()
	return m
}

// loadLongTerm restores the persisted profile. Failures log and start empty.
func (m *Manager) loadLongTerm() {
	if m.longTermFile == "" {
		return
	}
	data, err := os.ReadFile(m.longTermFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("memory", "Failed to read long-term memory file",
				map[string]any{"path": m.longTermFile, "error": err.Error()})
		}
		return
	}

	var record LongTermRecord
	if err := json.Unmarshal(data, &record); err != nil {
		logger.WarnCF("memory", "Failed to parse long-term memory file, starting empty",
			map[string]any{"path": m.longTermFile, "error": err.Error()})
		return
	}
	if record.Profile == nil {
		record.Profile = make(map[string]any)
	}
	if record.Preferences == nil {
		record.Preferences = make(map[string][]string)
	}
	m.longTerm = record
	logger.InfoCF("memory", "Loaded long-term memory",
		map[string]any{"update_count": record.Metadata.UpdateCount})
}

// Add appends one conversation round: to the bounded ring, and to the vector
// collection under a monotonically increasing stm id. Every triggerCount
// appends the long-term record is regenerated.
func (m *Manager) Add(ctx context.Context, entry ShortTermEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
	m.appendCount++
	regenerate := m.appendCount%m.triggerCount == 0

	id := entry.Timestamp.UnixMilli()
	if id <= m.lastSTMID {
		id = m.lastSTMID + 1
	}
	m.lastSTMID = id
	m.mu.Unlock()

	if m.embedder != nil && m.store != nil {
		text := fmt.Sprintf("user: %s\nassistant: %s", entry.Query, entry.Response)
		vectors, err := m.embedder.Embed(ctx, []string{text})
		if err != nil {
			logger.WarnCF("memory", "Embedding failed, entry kept in ring only",
				map[string]any{"error": err.Error()})
		} else if len(vectors) == 1 {
			m.mu.Lock()
			m.store.Collection(shortTermCollection).Upsert(vecstore.Document{
				ID:        fmt.Sprintf("stm_%d", id),
				Text:      text,
				Embedding: vectors[0],
				Metadata: map[string]string{
					"agent":   entry.Agent,
					"success": fmt.Sprintf("%t", entry.Success),
				},
				UpdatedAt: entry.Timestamp,
			})
			m.mu.Unlock()
		}
	}

	if regenerate {
		if err := m.RegenerateLongTerm(ctx); err != nil {
			logger.WarnCF("memory", "Long-term memory update failed",
				map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// Recent returns the last n entries in insertion order.
func (m *Manager) Recent(n int) []ShortTermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]ShortTermEntry, n)
	copy(out, m.entries[len(m.entries)-n:])
	return out
}

// Related embeds the query and returns the top-K short-term entries above the
// similarity threshold, excluding anything already in the recent window.
func (m *Manager) Related(ctx context.Context, query string, topK, recentWindow int) ([]vecstore.Result, error) {
	if m.embedder == nil || m.store == nil {
		return nil, nil
	}

	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed recall query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors", len(vectors))
	}

	var recent []ShortTermEntry
	if recentWindow > 0 {
		recent = m.Recent(recentWindow)
	}
	seen := make(map[string]bool, len(recent))
	for _, e := range recent {
		seen[fmt.Sprintf("user: %s\nassistant: %s", e.Query, e.Response)] = true
	}

	hits := m.store.Collection(shortTermCollection).Search(vectors[0], topK+recentWindow, m.scoreThreshold)
	out := make([]vecstore.Result, 0, topK)
	for _, h := range hits {
		if seen[h.Text] {
			continue
		}
		out = append(out, h)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// LongTerm returns a copy of the current long-term record.
func (m *Manager) LongTerm() LongTermRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.longTerm.Clone()
}

// Count returns the number of short-term entries currently held.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Flush persists the vector collections. Called by the maintenance loop and
// on shutdown.
func (m *Manager) Flush() error {
	if m.store == nil {
		return nil
	}
	return m.store.Save()
}

// RegenerateLongTerm runs the profile extraction over the recent history and
// persists the result. Concurrent updates are serialized by the caller chain
// (the memory adapter's worker); persistence itself is atomic.
func (m *Manager) RegenerateLongTerm(ctx context.Context) error {
	if m.llm == nil {
		return fmt.Errorf("no llm configured for long-term memory")
	}

	history := m.Recent(m.maxHistoryRounds)
	if len(history) == 0 {
		return nil
	}
	current := m.LongTerm()

	record, err := m.extractProfile(ctx, history, current)
	if err != nil {
		return err
	}

	record.Metadata.LastUpdate = time.Now().Unix()
	record.Metadata.UpdateCount = current.Metadata.UpdateCount + 1

	m.mu.Lock()
	m.longTerm = record
	m.mu.Unlock()

	if err := m.persistLongTerm(record); err != nil {
		logger.WarnCF("memory", "Failed to persist long-term memory",
			map[string]any{"error": err.Error()})
	}
	m.indexLongTerm(ctx, record)

	logger.InfoCF("memory", "Long-term memory updated",
		map[string]any{"update_count": record.Metadata.UpdateCount})
	return nil
}

func (m *Manager) persistLongTerm(record LongTermRecord) error {
	if m.longTermFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode long-term memory: %w", err)
	}
	return utils.WriteFileAtomic(m.longTermFile, data, 0o644)
}

// indexLongTerm upserts one vector entry per profile and preference field.
func (m *Manager) indexLongTerm(ctx context.Context, record LongTermRecord) {
	if m.embedder == nil || m.store == nil {
		return
	}

	type fieldDoc struct {
		field string
		text  string
	}
	var fields []fieldDoc
	for k, v := range record.Profile {
		fields = append(fields, fieldDoc{field: k, text: fmt.Sprintf("%s: %v", k, v)})
	}
	for k, v := range record.Preferences {
		fields = append(fields, fieldDoc{field: k, text: fmt.Sprintf("%s: %s", k, strings.Join(v, ", "))})
	}
	if len(fields) == 0 {
		return
	}

	texts := make([]string, len(fields))
	for i, f := range fields {
		texts[i] = f.text
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		logger.WarnCF("memory", "Failed to embed long-term fields",
			map[string]any{"error": err.Error()})
		return
	}

	docs := make([]vecstore.Document, 0, len(fields))
	now := time.Now()
	for i, f := range fields {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		docs = append(docs, vecstore.Document{
			ID:        "ltm_" + f.field,
			Text:      f.text,
			Embedding: vectors[i],
			Metadata:  map[string]string{"field": f.field},
			UpdatedAt: now,
		})
	}

	m.mu.Lock()
	m.store.Collection(longTermCollection).Upsert(docs...)
	m.mu.Unlock()
}
