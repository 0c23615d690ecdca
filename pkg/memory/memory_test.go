package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/vecstore"
)

// keywordEmbedder maps texts onto a 2-d space by topic keyword so similarity
// is predictable in tests.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		switch {
		case strings.Contains(text, "导航"):
			out[i] = []float32{1, 0}
		case strings.Contains(text, "播放") || strings.Contains(text, "音乐"):
			out[i] = []float32{0, 1}
		default:
			out[i] = []float32{0.7, 0.7}
		}
	}
	return out, nil
}

// scriptedLLM returns a fixed profile-extraction payload.
type scriptedLLM struct {
	calls int
}

func (s *scriptedLLM) Chat(context.Context, []providers.Message, []providers.ToolDefinition, string, map[string]any) (*providers.LLMResponse, error) {
	s.calls++
	return &providers.LLMResponse{
		Content: `{"summary": "用户常去中关村", "profile": {"location": "北京"}, "preferences": {"music": ["周杰伦"]}}`,
	}, nil
}

func (s *scriptedLLM) GetDefaultModel() string { return "test" }

func testConfig(dir string) config.MemoryConfig {
	return config.MemoryConfig{
		ShortTermCapacity: 5,
		TriggerCount:      3,
		MaxHistoryRounds:  10,
		VectorDBPath:      filepath.Join(dir, "vectors"),
		LongTermFile:      filepath.Join(dir, "long_term.json"),
		ScoreThreshold:    0.7,
	}
}

func TestRecentReturnsLastNInOrder(t *testing.T) {
	m := NewManager(testConfig(t.TempDir()), nil, nil, nil)

	for i := range 4 {
		require.NoError(t, m.Add(context.Background(), ShortTermEntry{
			Query:    fmt.Sprintf("q%d", i),
			Response: fmt.Sprintf("r%d", i),
		}))
	}

	recent := m.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "q2", recent[0].Query)
	assert.Equal(t, "q3", recent[1].Query)
}

func TestRingDropsOldestAtCapacity(t *testing.T) {
	m := NewManager(testConfig(t.TempDir()), nil, nil, nil)

	for i := range 8 {
		m.Add(context.Background(), ShortTermEntry{Query: fmt.Sprintf("q%d", i)})
	}

	assert.Equal(t, 5, m.Count())
	recent := m.Recent(5)
	assert.Equal(t, "q3", recent[0].Query)
	assert.Equal(t, "q7", recent[4].Query)
}

func TestRelatedRecallRanksBySimilarity(t *testing.T) {
	dir := t.TempDir()
	store := vecstore.NewStore(filepath.Join(dir, "vectors"))
	m := NewManager(testConfig(dir), store, keywordEmbedder{}, nil)

	ctx := context.Background()
	require.NoError(t, m.Add(ctx, ShortTermEntry{Query: "导航到中关村", Response: "正在规划路线"}))
	require.NoError(t, m.Add(ctx, ShortTermEntry{Query: "播放周杰伦", Response: "已播放"}))

	hits, err := m.Related(ctx, "导航去公司", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Text, "导航到中关村")
	for _, h := range hits {
		assert.NotContains(t, h.Text, "播放周杰伦", "below-threshold entry must be filtered")
	}
}

func TestRelatedDeduplicatesAgainstRecent(t *testing.T) {
	dir := t.TempDir()
	store := vecstore.NewStore(filepath.Join(dir, "vectors"))
	m := NewManager(testConfig(dir), store, keywordEmbedder{}, nil)

	ctx := context.Background()
	require.NoError(t, m.Add(ctx, ShortTermEntry{Query: "导航到中关村", Response: "正在规划路线"}))

	hits, err := m.Related(ctx, "导航去公司", 5, 1)
	require.NoError(t, err)
	assert.Empty(t, hits, "entry inside the recent window must be deduplicated")
}

func TestLongTermTriggeredEveryNAppends(t *testing.T) {
	dir := t.TempDir()
	llm := &scriptedLLM{}
	cfg := testConfig(dir)
	m := NewManager(cfg, nil, nil, llm)

	ctx := context.Background()
	for i := range cfg.TriggerCount {
		m.Add(ctx, ShortTermEntry{Query: fmt.Sprintf("q%d", i), Response: "r"})
	}

	assert.Equal(t, 1, llm.calls, "extraction should run once per trigger_count appends")

	record := m.LongTerm()
	assert.Equal(t, "用户常去中关村", record.Summary)
	assert.Equal(t, "北京", record.Profile["location"])
	assert.Equal(t, []string{"周杰伦"}, record.Preferences["music"])
	assert.Equal(t, 1, record.Metadata.UpdateCount)
}

func TestLongTermPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	llm := &scriptedLLM{}
	cfg := testConfig(dir)

	m := NewManager(cfg, nil, nil, llm)
	ctx := context.Background()
	for i := range cfg.TriggerCount * 2 {
		m.Add(ctx, ShortTermEntry{Query: fmt.Sprintf("q%d", i), Response: "r"})
	}
	require.Equal(t, 2, m.LongTerm().Metadata.UpdateCount)

	// The JSON file on disk is well-formed and complete.
	data, err := os.ReadFile(cfg.LongTermFile)
	require.NoError(t, err)
	var onDisk LongTermRecord
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 2, onDisk.Metadata.UpdateCount)
	assert.NotZero(t, onDisk.Metadata.LastUpdate)

	// A fresh manager (process restart) loads the same record.
	m2 := NewManager(cfg, nil, nil, llm)
	assert.Equal(t, onDisk.Summary, m2.LongTerm().Summary)
	assert.Equal(t, 2, m2.LongTerm().Metadata.UpdateCount)
}

func TestCorruptLongTermFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	require.NoError(t, os.WriteFile(cfg.LongTermFile, []byte("{broken"), 0o644))

	m := NewManager(cfg, nil, nil, nil)
	assert.Empty(t, m.LongTerm().Summary)
	assert.Empty(t, m.LongTerm().Profile)
}

func TestLongTermFieldsIndexedInVectorStore(t *testing.T) {
	dir := t.TempDir()
	store := vecstore.NewStore(filepath.Join(dir, "vectors"))
	cfg := testConfig(dir)
	m := NewManager(cfg, store, keywordEmbedder{}, &scriptedLLM{})

	ctx := context.Background()
	for i := range cfg.TriggerCount {
		m.Add(ctx, ShortTermEntry{Query: fmt.Sprintf("q%d", i), Response: "r"})
	}

	ltm := store.Collection("long_term_memories")
	require.Equal(t, 2, ltm.Len(), "one entry per profile/preference field")

	hits := ltm.Search([]float32{0.7, 0.7}, 10, 0)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Contains(t, ids, "ltm_location")
	assert.Contains(t, ids, "ltm_music")
}
