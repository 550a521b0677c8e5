// Package memory implements the local vector store backend: a brute-force
// cosine index held in process, optionally persisted to BadgerDB so a local
// deployment survives restarts.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/knowledge"
)

const chunkKeyPrefix = "chunk/"

// Store holds one index per namespace. All operations are mutex-guarded;
// queries take a read lock so they run concurrently with each other.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*nsIndex
	db         *badger.DB // nil when persistence is disabled
	logger     *zap.Logger
}

type nsIndex struct {
	chunks []knowledge.Chunk // insertion order, normalized embeddings
	byID   map[string]int    // chunk ID -> index into chunks
}

// badgerLoggerAdapter routes badger's internal logging through zap.
type badgerLoggerAdapter struct {
	logger *zap.SugaredLogger
}

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any)   { bl.logger.Errorf(msg, items...) }
func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) { bl.logger.Warnf(msg, items...) }
func (bl *badgerLoggerAdapter) Infof(msg string, items ...any)    { bl.logger.Debugf(msg, items...) }
func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any)   { bl.logger.Debugf(msg, items...) }

// Open creates a Store. With a non-empty path the index is write-through
// persisted to BadgerDB and reloaded on startup; with an empty path it is
// purely in-memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		namespaces: make(map[string]*nsIndex),
		logger:     logger.Named("localstore"),
	}
	if path == "" {
		return s, nil
	}

	opts := badger.DefaultOptions(path)
	opts.Compression = options.None
	opts.Logger = &badgerLoggerAdapter{logger: s.logger.Sugar()}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local vector store: %w", err)
	}
	s.db = db

	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Upsert inserts or replaces chunks by ID. Embeddings are L2-normalized once
// at write time so queries reduce to dot products.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []knowledge.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.namespace(namespace)
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Namespace = namespace
		c.Embedding = normalize(c.Embedding)
		if pos, exists := idx.byID[c.ID]; exists {
			idx.chunks[pos] = c
		} else {
			idx.byID[c.ID] = len(idx.chunks)
			idx.chunks = append(idx.chunks, c)
		}
		if err := s.persist(c); err != nil {
			return err
		}
	}
	return nil
}

// Query returns the k nearest chunks by cosine similarity, ties broken by
// insertion order.
func (s *Store) Query(_ context.Context, namespace string, vector []float32, k int) ([]knowledge.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.namespaces[namespace]
	if !ok {
		return nil, nil
	}
	query := normalize(vector)

	type scored struct {
		order int
		score float64
	}
	results := make([]scored, 0, len(idx.chunks))
	for i, c := range idx.chunks {
		results = append(results, scored{order: i, score: dot(query, c.Embedding)})
	}
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].score != results[b].score {
			return results[a].score > results[b].score
		}
		return results[a].order < results[b].order
	})
	if k > len(results) {
		k = len(results)
	}
	out := make([]knowledge.ScoredChunk, 0, k)
	for _, r := range results[:k] {
		out = append(out, knowledge.ScoredChunk{Chunk: idx.chunks[r.order], Score: r.score})
	}
	return out, nil
}

// DeleteNamespace drops an entire namespace, including persisted rows.
func (s *Store) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, namespace)
	if s.db == nil {
		return nil
	}
	return s.deletePrefix(chunkKeyPrefix + namespace + "/")
}

// DeleteSourceBefore removes chunks for sourceURL whose generation predates
// generation. Index rebuild and badger deletes happen under the write lock,
// so a reader never sees a partially swapped source.
func (s *Store) DeleteSourceBefore(_ context.Context, namespace, sourceURL string, generation int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	kept := make([]knowledge.Chunk, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		if c.SourceURL == sourceURL && c.Generation < generation {
			if err := s.unpersist(c); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, c)
	}
	idx.chunks = kept
	idx.byID = make(map[string]int, len(kept))
	for i, c := range kept {
		idx.byID[c.ID] = i
	}
	return nil
}

// Count reports the number of chunks held for a namespace.
func (s *Store) Count(_ context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.namespaces[namespace]
	if !ok {
		return 0, nil
	}
	return len(idx.chunks), nil
}

// Close releases the persistence handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) namespace(name string) *nsIndex {
	idx, ok := s.namespaces[name]
	if !ok {
		idx = &nsIndex{byID: make(map[string]int)}
		s.namespaces[name] = idx
	}
	return idx
}

func (s *Store) load() error {
	count := 0
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkKeyPrefix)
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var c knowledge.Chunk
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			idx := s.namespace(c.Namespace)
			idx.byID[c.ID] = len(idx.chunks)
			idx.chunks = append(idx.chunks, c)
			count++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load local vector store: %w", err)
	}
	// Restore deterministic insertion order across restarts.
	for _, idx := range s.namespaces {
		sort.SliceStable(idx.chunks, func(a, b int) bool {
			if idx.chunks[a].Generation != idx.chunks[b].Generation {
				return idx.chunks[a].Generation < idx.chunks[b].Generation
			}
			if idx.chunks[a].SourceURL != idx.chunks[b].SourceURL {
				return idx.chunks[a].SourceURL < idx.chunks[b].SourceURL
			}
			return idx.chunks[a].Position < idx.chunks[b].Position
		})
		for i, c := range idx.chunks {
			idx.byID[c.ID] = i
		}
	}
	if count > 0 {
		s.logger.Info("loaded persisted chunks", zap.Int("count", count))
	}
	return nil
}

func (s *Store) persist(c knowledge.Chunk) error {
	if s.db == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(chunkKey(c)), data)
	})
}

func (s *Store) unpersist(c knowledge.Chunk) error {
	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Delete([]byte(chunkKey(c)))
	})
}

func (s *Store) deletePrefix(prefix string) error {
	var keys [][]byte
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func chunkKey(c knowledge.Chunk) string {
	var b strings.Builder
	b.WriteString(chunkKeyPrefix)
	b.WriteString(c.Namespace)
	b.WriteByte('/')
	b.WriteString(c.ID)
	return b.String()
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
