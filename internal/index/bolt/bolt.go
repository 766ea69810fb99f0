// Package bolt implements a persistent single-node vector index on bbolt.
// Identity (dimension, embedder, metric) is pinned in a meta bucket at first
// open; reopening with different settings fails fast instead of quietly
// mixing incompatible vectors.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
	"github.com/skryne/ragd/internal/index/memory"
)

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")
	keyIdentity  = []byte("identity")
)

type chunkRecord struct {
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Seq    int       `json:"seq"`
	Offset int       `json:"offset"`
	Vector []float32 `json:"vector"`
}

type indexMeta struct {
	Dimension int    `json:"dimension"`
	Embedder  string `json:"embedder"`
	Metric    string `json:"metric"`
}

// Index persists chunks in a bbolt file and serves searches from an embedded
// in-memory engine.
type Index struct {
	db  *bbolt.DB
	mem *memory.Index
}

var _ index.Index = (*Index)(nil)

// Open opens or creates the index file and verifies its identity against the
// configured one. A mismatch means the stored vectors came from a different
// embedding space and the only way forward is a re-index.
func Open(path string, dimension int, embedder string, metric index.Metric) (*Index, error) {
	mem, err := memory.New(dimension, embedder, metric)
	if err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChunks); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketChunks, err)
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketMeta, err)
		}

		raw := meta.Get(keyIdentity)
		if raw == nil {
			data, err := json.Marshal(indexMeta{Dimension: dimension, Embedder: embedder, Metric: string(metric)})
			if err != nil {
				return err
			}
			return meta.Put(keyIdentity, data)
		}

		var stored indexMeta
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode index identity: %w", err)
		}
		if stored.Embedder != embedder {
			return fmt.Errorf("index at %s built with embedder %q, configured %q, re-index required: %w",
				path, stored.Embedder, embedder, domain.ErrEmbedderMismatch)
		}
		if stored.Dimension != dimension {
			return fmt.Errorf("index at %s built with dimension %d, configured %d, re-index required: %w",
				path, stored.Dimension, dimension, domain.ErrDimensionMismatch)
		}
		if stored.Metric != string(metric) {
			return fmt.Errorf("index at %s built with metric %q, configured %q, re-index required: %w",
				path, stored.Metric, metric, domain.ErrInvalidConfig)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	// вся база грузится в память при открытии: bbolt хранит байты, а
	// векторный скан всё равно живёт в RAM
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode chunk record %x: %w", k, err)
			}
			chunk := domain.Chunk{Text: rec.Text, Source: rec.Source, Seq: rec.Seq, Offset: rec.Offset}
			return mem.Insert(context.Background(), chunk, rec.Vector)
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db, mem: mem}, nil
}

// Insert persists the chunk, then mirrors it into the in-memory engine.
func (i *Index) Insert(ctx context.Context, chunk domain.Chunk, vector []float32) error {
	if len(vector) != i.mem.Dimension() {
		return fmt.Errorf("insert %s#%d: %w", chunk.Source, chunk.Seq,
			domain.NewDimensionMismatch(i.mem.Dimension(), len(vector)))
	}

	rec := chunkRecord{Text: chunk.Text, Source: chunk.Source, Seq: chunk.Seq, Offset: chunk.Offset, Vector: vector}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode chunk record: %w", err)
	}
	err = i.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
	if err != nil {
		return fmt.Errorf("persist chunk: %w", err)
	}

	return i.mem.Insert(ctx, chunk, vector)
}

// Search delegates to the in-memory engine.
func (i *Index) Search(ctx context.Context, vector []float32, embedder string, k int) ([]index.Hit, error) {
	return i.mem.Search(ctx, vector, embedder, k)
}

// Count delegates to the in-memory engine; disk and memory hold the same set.
func (i *Index) Count(ctx context.Context) (int, error) {
	return i.mem.Count(ctx)
}

// Reset drops all chunks on disk and in memory, keeping the identity.
func (i *Index) Reset(ctx context.Context) error {
	err := i.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChunks); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketChunks)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset chunks: %w", err)
	}
	return i.mem.Reset(ctx)
}

// Embedder returns the identifier the index is tagged with.
func (i *Index) Embedder() string { return i.mem.Embedder() }

// Dimension returns the vector length the index accepts.
func (i *Index) Dimension() int { return i.mem.Dimension() }

// Close closes the underlying bbolt file.
func (i *Index) Close() error { return i.db.Close() }

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
