// Package semantic implements the long-term memory tier: a flat vector
// index over embedded conversation summaries, searched by L2 distance
// and filtered per user.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"novabot/internal/domain"
	"novabot/internal/embedding"
)

// overFetchFactor widens the raw nearest-neighbor search so that the
// per-user filter still has enough candidates to fill k results.
const overFetchFactor = 10

// flatIndex is an exact nearest-neighbor index over fixed-dimension
// vectors. Distances are squared L2, so ordering matches true L2 while
// skipping the square root.
type flatIndex struct {
	dim     int
	vectors [][]float32
}

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

func (f *flatIndex) add(vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(vec), f.dim)
	}
	f.vectors = append(f.vectors, vec)
	return nil
}

func (f *flatIndex) len() int { return len(f.vectors) }

type hit struct {
	position int
	distance float64
}

// search returns up to k nearest vectors by squared L2 distance,
// closest first.
func (f *flatIndex) search(query []float32, k int) []hit {
	hits := make([]hit, 0, len(f.vectors))
	for i, vec := range f.vectors {
		var d float64
		for j := range vec {
			diff := float64(vec[j]) - float64(query[j])
			d += diff * diff
		}
		hits = append(hits, hit{position: i, distance: d})
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].distance < hits[b].distance })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// Index stores embedded memory items and retrieves the most relevant
// ones for a query. The vector index and the item list are kept
// positionally aligned: vector i always belongs to items[i]. All
// mutating and searching operations hold one lock, so alignment cannot
// be observed mid-update.
type Index struct {
	mu       sync.Mutex
	embedder embedding.Embedder
	flat     *flatIndex
	items    []domain.MemoryItem

	maxDistance float64
	indexPath   string
	itemsPath   string
	logger      *slog.Logger
}

// Config configures the semantic memory index.
type Config struct {
	Embedder embedding.Embedder

	// MaxDistance drops retrieval hits whose squared L2 distance from
	// the query exceeds it. Zero or negative disables the cutoff, so a
	// zero-value Config retrieves without one.
	MaxDistance float64

	// IndexPath and ItemsPath locate the persisted index pair. Empty
	// paths disable persistence.
	IndexPath string
	ItemsPath string

	Logger *slog.Logger
}

// New creates an Index, loading any previously persisted state. A
// missing or unreadable persisted pair starts the index empty rather
// than failing.
func New(cfg Config) (*Index, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("semantic: embedder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	idx := &Index{
		embedder:    cfg.Embedder,
		flat:        newFlatIndex(cfg.Embedder.Dimensions()),
		maxDistance: cfg.MaxDistance,
		indexPath:   cfg.IndexPath,
		itemsPath:   cfg.ItemsPath,
		logger:      cfg.Logger,
	}
	idx.load()
	return idx, nil
}

// Store embeds text and adds it as a memory for userID, returning the
// new item's id.
func (x *Index) Store(ctx context.Context, userID, text string, metadata map[string]any) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("memory text is empty: %w", domain.ErrInvalidArgument)
	}
	if userID == "" {
		return "", fmt.Errorf("user id is empty: %w", domain.ErrInvalidArgument)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed memory: %w", err)
	}
	if err := x.flat.add(vec); err != nil {
		return "", err
	}

	item := domain.MemoryItem{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	x.items = append(x.items, item)
	x.persist()

	x.logger.Debug("memory stored", "user_id", userID, "id", item.ID, "total", len(x.items))
	return item.ID, nil
}

// StoreBatch embeds and stores several texts for userID in one embedder
// call, persisting once. Blank texts are dropped; the returned ids
// cover only the texts actually stored.
func (x *Index) StoreBatch(ctx context.Context, userID string, texts []string, metadata map[string]any) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is empty: %w", domain.ErrInvalidArgument)
	}
	// Blank entries are skipped, not fatal: the rest of the batch still
	// stores.
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) == 0 {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	vecs, err := x.embedder.EmbedBatch(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	now := time.Now().UTC()
	ids := make([]string, 0, len(trimmed))
	for i, vec := range vecs {
		if err := x.flat.add(vec); err != nil {
			return nil, err
		}
		item := domain.MemoryItem{
			ID:        ulid.Make().String(),
			UserID:    userID,
			Text:      trimmed[i],
			Timestamp: now,
			Metadata:  metadata,
		}
		x.items = append(x.items, item)
		ids = append(ids, item.ID)
	}
	x.persist()
	return ids, nil
}

// Retrieve returns up to k memories of userID most relevant to query,
// closest first. A blank query or an empty index yields no results
// without error.
func (x *Index) Retrieve(ctx context.Context, userID, query string, k int) ([]domain.ScoredMemory, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.flat.len() == 0 {
		return nil, nil
	}

	qvec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the user filter can still fill k results when the
	// index mixes many users.
	hits := x.flat.search(qvec, min(k*overFetchFactor, x.flat.len()))

	results := make([]domain.ScoredMemory, 0, k)
	for _, h := range hits {
		item := x.items[h.position]
		if item.UserID != userID {
			continue
		}
		if x.maxDistance > 0 && h.distance > x.maxDistance {
			continue
		}
		results = append(results, domain.ScoredMemory{
			MemoryItem: item,
			Distance:   h.distance,
			Similarity: 1 / (1 + h.distance),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// DeleteUser removes every memory belonging to userID and rebuilds the
// vector index by re-embedding the surviving items. The relative order
// of other users' memories is preserved. Returns the number removed.
func (x *Index) DeleteUser(ctx context.Context, userID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := make([]domain.MemoryItem, 0, len(x.items))
	for _, item := range x.items {
		if item.UserID != userID {
			kept = append(kept, item)
		}
	}
	removed := len(x.items) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	rebuilt := newFlatIndex(x.flat.dim)
	if len(kept) > 0 {
		texts := make([]string, len(kept))
		for i, item := range kept {
			texts[i] = item.Text
		}
		vecs, err := x.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("rebuild index: %w", err)
		}
		for _, vec := range vecs {
			if err := rebuilt.add(vec); err != nil {
				return 0, err
			}
		}
	}

	x.flat = rebuilt
	x.items = kept
	x.persist()

	x.logger.Info("user memories deleted", "user_id", userID, "removed", removed, "remaining", len(kept))
	return removed, nil
}

// UserMemories returns userID's memories, capped at limit when limit is
// positive. With sortByTime they come most recent first, otherwise in
// insertion order.
func (x *Index) UserMemories(userID string, limit int, sortByTime bool) []domain.MemoryItem {
	x.mu.Lock()
	defer x.mu.Unlock()

	var out []domain.MemoryItem
	if sortByTime {
		// Items append in arrival order, so walk backwards for recency.
		for i := len(x.items) - 1; i >= 0; i-- {
			if x.items[i].UserID != userID {
				continue
			}
			out = append(out, x.items[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return out
	}
	for _, item := range x.items {
		if item.UserID != userID {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Stats reports index-wide counts for diagnostics.
func (x *Index) Stats() domain.MemoryStats {
	x.mu.Lock()
	defer x.mu.Unlock()

	perUser := make(map[string]int)
	for _, item := range x.items {
		perUser[item.UserID]++
	}
	return domain.MemoryStats{
		TotalMemories: len(x.items),
		UniqueUsers:   len(perUser),
		PerUser:       perUser,
		IndexSize:     x.flat.len(),
		Model:         x.embedder.Model(),
		Dimension:     x.flat.dim,
	}
}
