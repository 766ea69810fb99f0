// Package redis implements the vector index on Redis 8+ via RediSearch.
// Chunks live in hashes under ragd:chunk:<n>, searched through an HNSW
// vector field; the index identity is pinned in a meta key and verified at
// startup so a model swap can never silently mix vector spaces.
package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/index"
)

const (
	indexName  = "ragd-chunks"
	keyPrefix  = "ragd:chunk:"
	metaKey    = "ragd:index-meta"
	counterKey = "ragd:chunk-seq"
)

type indexMeta struct {
	Dimension int    `json:"dimension"`
	Embedder  string `json:"embedder"`
	Metric    string `json:"metric"`
}

// Config holds connection parameters and the index identity.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	Dimension int
	Embedder  string
	Metric    index.Metric

	// HNSW construction knobs; zero keeps the server defaults.
	M              int
	EFConstruction int
}

// Index implements index.Index via rueidis.
type Index struct {
	client rueidis.Client
	guard  index.Guard
	metric index.Metric
	m      int
	efc    int
}

var _ index.Index = (*Index)(nil)

// New creates the client without touching the server; call WaitForReady and
// Ensure before serving queries.
func New(cfg Config) (*Index, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required: %w", domain.ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d: %w", cfg.Dimension, domain.ErrInvalidConfig)
	}
	if cfg.Embedder == "" {
		return nil, fmt.Errorf("embedder identifier is required: %w", domain.ErrInvalidConfig)
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Index{
		client: client,
		guard:  index.Guard{Dim: cfg.Dimension, Tag: cfg.Embedder},
		metric: cfg.Metric,
		m:      cfg.M,
		efc:    cfg.EFConstruction,
	}, nil
}

// Ping checks connectivity.
func (i *Index) Ping(ctx context.Context) error {
	if err := i.client.Do(ctx, i.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (i *Index) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := i.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Ensure verifies the stored index identity against the configured one and
// creates the FT index when absent. A mismatch is fatal: the stored vectors
// belong to a different embedding space and need a re-index.
func (i *Index) Ensure(ctx context.Context) error {
	raw, err := i.client.Do(ctx, i.client.B().Get().Key(metaKey).Build()).AsBytes()
	switch {
	case err == nil:
		var stored indexMeta
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode index meta: %w", err)
		}
		if stored.Embedder != i.guard.Tag {
			return fmt.Errorf("index built with embedder %q, configured %q, re-index required: %w",
				stored.Embedder, i.guard.Tag, domain.ErrEmbedderMismatch)
		}
		if stored.Dimension != i.guard.Dim {
			return fmt.Errorf("index built with dimension %d, configured %d, re-index required: %w",
				stored.Dimension, i.guard.Dim, domain.ErrDimensionMismatch)
		}
		if stored.Metric != string(i.metric) {
			return fmt.Errorf("index built with metric %q, configured %q, re-index required: %w",
				stored.Metric, i.metric, domain.ErrInvalidConfig)
		}
	case rueidis.IsRedisNil(err):
		if err := i.writeMeta(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("read index meta: %w", err)
	}

	return i.createFTIndex(ctx)
}

func (i *Index) writeMeta(ctx context.Context) error {
	data, err := json.Marshal(indexMeta{Dimension: i.guard.Dim, Embedder: i.guard.Tag, Metric: string(i.metric)})
	if err != nil {
		return err
	}
	cmd := i.client.B().Set().Key(metaKey).Value(string(data)).Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}
	return nil
}

func (i *Index) createFTIndex(ctx context.Context) error {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(i.guard.Dim),
		"DISTANCE_METRIC", ftMetric(i.metric),
	}
	if i.m > 0 {
		attrs = append(attrs, "M", strconv.Itoa(i.m))
	}
	if i.efc > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(i.efc))
	}

	args := []string{
		indexName, "ON", "HASH", "PREFIX", "1", keyPrefix, "SCHEMA",
		"source", "TAG",
		"vector", "VECTOR", "HNSW", strconv.Itoa(len(attrs)),
	}
	args = append(args, attrs...)

	cmd := i.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("ft.create: %w", err)
	}
	return nil
}

func ftMetric(m index.Metric) string {
	if m == index.MetricL2 {
		return "L2"
	}
	return "COSINE"
}

// Insert stores one chunk hash.
func (i *Index) Insert(ctx context.Context, chunk domain.Chunk, vector []float32) error {
	if err := i.guard.CheckVector(vector); err != nil {
		return fmt.Errorf("insert %s#%d: %w", chunk.Source, chunk.Seq, err)
	}

	id, err := i.client.Do(ctx, i.client.B().Incr().Key(counterKey).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("next chunk id: %w", err)
	}

	key := keyPrefix + strconv.FormatInt(id, 10)
	cmd := i.client.B().Hset().Key(key).FieldValue().
		FieldValue("text", chunk.Text).
		FieldValue("source", chunk.Source).
		FieldValue("seq", strconv.Itoa(chunk.Seq)).
		FieldValue("offset", strconv.Itoa(chunk.Offset)).
		FieldValue("vector", vectorToBytes(vector)).
		Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Search runs a KNN query via FT.SEARCH, ordered by ascending distance.
func (i *Index) Search(ctx context.Context, vector []float32, embedder string, k int) ([]index.Hit, error) {
	if err := i.guard.CheckEmbedder(embedder); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if err := i.guard.CheckVector(vector); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if k < 1 {
		return nil, fmt.Errorf("search: k must be positive, got %d", k)
	}

	args := []string{
		indexName,
		fmt.Sprintf("*=>[KNN %d @vector $BLOB]", k),
		"RETURN", "5", "text", "source", "seq", "offset", "__vector_score",
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}
	cmd := i.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := i.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("ft.search: %w", err)
	}

	return parseKNNResult(raw)
}

// Count reports the number of stored chunks via FT.SEARCH with LIMIT 0 0.
func (i *Index) Count(ctx context.Context) (int, error) {
	cmd := i.client.B().Arbitrary("FT.SEARCH").Args(indexName, "*", "LIMIT", "0", "0").Build()
	raw, err := i.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return 0, fmt.Errorf("ft.search count: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// Reset drops the FT index together with all chunk hashes, then recreates it.
// The meta key stays; identity survives a reset.
func (i *Index) Reset(ctx context.Context) error {
	cmd := i.client.B().Arbitrary("FT.DROPINDEX").Args(indexName, "DD").Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return fmt.Errorf("ft.dropindex: %w", err)
	}
	if err := i.client.Do(ctx, i.client.B().Del().Key(counterKey).Build()).Error(); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return i.createFTIndex(ctx)
}

// Embedder returns the identifier the index is tagged with.
func (i *Index) Embedder() string { return i.guard.Tag }

// Dimension returns the vector length the index accepts.
func (i *Index) Dimension() int { return i.guard.Dim }

// Close shuts down the client.
func (i *Index) Close() error {
	i.client.Close()
	return nil
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) ([]index.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]index.Hit, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for n := 1; n+1 < len(raw); n += 2 {
		fields, err := raw[n+1].ToArray()
		if err != nil {
			continue
		}
		pairs := parseFieldPairs(fields)

		seq, _ := strconv.Atoi(pairs["seq"])
		offset, _ := strconv.Atoi(pairs["offset"])
		hit := index.Hit{Chunk: domain.Chunk{
			Text:   pairs["text"],
			Source: pairs["source"],
			Seq:    seq,
			Offset: offset,
		}}
		if score, err := strconv.ParseFloat(pairs["__vector_score"], 64); err == nil {
			hit.Distance = score
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Helpers ---

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
