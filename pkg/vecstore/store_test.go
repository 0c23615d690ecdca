package vecstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
		tol  float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0, 0.001},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0, 0.001},
		{"similar", []float32{1, 1}, []float32{1, 0.9}, 0.998, 0.01},
		{"empty", []float32{}, []float32{}, 0.0, 0.001},
		{"mismatched", []float32{1, 2}, []float32{1, 2, 3}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if diff := got - tt.want; diff > tt.tol || diff < -tt.tol {
				t.Errorf("Cosine(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSearchReturnsTopKAboveThreshold(t *testing.T) {
	c := NewStore("").Collection("test")
	now := time.Now()

	c.Upsert(
		Document{ID: "a", Text: "alpha", Embedding: []float32{1, 0, 0}, UpdatedAt: now},
		Document{ID: "b", Text: "beta", Embedding: []float32{0, 1, 0}, UpdatedAt: now},
		Document{ID: "c", Text: "gamma", Embedding: []float32{0.9, 0.1, 0}, UpdatedAt: now},
	)

	results := c.Search([]float32{1, 0, 0}, 2, 0)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "c" {
		t.Errorf("expected [a c], got [%s %s]", results[0].ID, results[1].ID)
	}

	// The orthogonal document falls below a 0.7 threshold.
	results = c.Search([]float32{1, 0, 0}, 10, 0.7)
	for _, r := range results {
		if r.ID == "b" {
			t.Error("document below threshold returned")
		}
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	c := NewStore("").Collection("test")
	now := time.Now()

	c.Upsert(Document{ID: "a", Text: "original", Embedding: []float32{1, 0}, UpdatedAt: now})
	c.Upsert(Document{ID: "a", Text: "replaced", Embedding: []float32{0, 1}, UpdatedAt: now})

	if c.Len() != 1 {
		t.Fatalf("expected 1 document, got %d", c.Len())
	}
	results := c.Search([]float32{0, 1}, 1, 0)
	if results[0].Text != "replaced" {
		t.Errorf("expected replaced text, got %q", results[0].Text)
	}
}

func TestDelete(t *testing.T) {
	c := NewStore("").Collection("test")
	now := time.Now()

	c.Upsert(
		Document{ID: "a", Embedding: []float32{1, 0}, UpdatedAt: now},
		Document{ID: "b", Embedding: []float32{0, 1}, UpdatedAt: now},
	)
	c.Delete("a")

	if c.Len() != 1 {
		t.Fatalf("expected 1 document after delete, got %d", c.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	store := NewStore(dir)
	c := store.Collection("short_term_memories")
	c.Upsert(Document{
		ID:        "stm_1",
		Text:      "user: 导航到中关村\nassistant: 正在规划路线",
		Embedding: []float32{0.5, 0.5},
		Metadata:  map[string]string{"agent": "navigation_agent"},
		UpdatedAt: now,
	})
	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewStore(dir).Collection("short_term_memories")
	if reloaded.Len() != 1 {
		t.Fatalf("expected 1 document after reload, got %d", reloaded.Len())
	}
	results := reloaded.Search([]float32{0.5, 0.5}, 1, 0)
	if results[0].ID != "stm_1" || results[0].Metadata["agent"] != "navigation_agent" {
		t.Fatalf("reloaded document wrong: %+v", results[0])
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.gob")
	if err := writeFile(path, []byte("not gob data")); err != nil {
		t.Fatal(err)
	}

	c := NewStore(dir).Collection("broken")
	if c.Len() != 0 {
		t.Fatalf("corrupt file must load empty, got %d documents", c.Len())
	}
}
