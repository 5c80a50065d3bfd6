package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/randalmurphal/code-search/internal/chunk"
)

// scrollPageSize bounds one Scroll round trip during Scan.
const scrollPageSize = 256

type payloadIndex struct {
	field string
	typ   qdrant.FieldType
}

// payloadIndexes is the collection's payload schema.
var payloadIndexes = []payloadIndex{
	{"name", qdrant.FieldType_FieldTypeKeyword},
	{"type", qdrant.FieldType_FieldTypeKeyword},
	{"file_path", qdrant.FieldType_FieldTypeKeyword},
	{"repo", qdrant.FieldType_FieldTypeKeyword},
	{"start_line", qdrant.FieldType_FieldTypeInteger},
	{"end_line", qdrant.FieldType_FieldTypeInteger},
	{"code", qdrant.FieldType_FieldTypeText},
}

// QdrantStore handles vector storage in Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantStore creates a new Qdrant store for one collection.
// urlStr is the HTTP address (e.g. "http://localhost:6333"); the gRPC port is
// derived as the HTTP port plus one.
func NewQdrantStore(urlStr, apiKey, collection string, logger *slog.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	host, port, useTLS, err := parseQdrantURL(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", classify(err))
	}

	return &QdrantStore{client: client, collection: collection, logger: logger}, nil
}

func parseQdrantURL(urlStr string) (host string, port int, useTLS bool, err error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host = parsed.Hostname()
	if host == "" {
		host = "localhost"
	}

	port = 6334 // default gRPC port
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	return host, port, parsed.Scheme == "https", nil
}

// Close closes the Qdrant connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureSchema implements Store. Concurrent callers may both see the
// collection missing; the loser's create error is ignored once the
// collection is confirmed to exist. Payload indexes missing from an existing
// collection are created too, so a run interrupted after the collection was
// made is completed by the next one.
func (s *QdrantStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, classify(err))
	}

	if !exists {
		s.logger.Info("creating collection", "collection", s.collection, "vector_size", chunk.EmbeddingDimension)

		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(chunk.EmbeddingDimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			if exists, checkErr := s.client.CollectionExists(ctx, s.collection); checkErr != nil || !exists {
				return fmt.Errorf("create collection %s: %w", s.collection, classify(err))
			}
		}
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("read collection %s: %w", s.collection, classify(err))
	}

	for _, idx := range missingIndexes(info.GetPayloadSchema()) {
		s.logger.Debug("creating payload index", "collection", s.collection, "field", idx.field)
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      idx.field,
			FieldType:      qdrant.PtrOf(idx.typ),
		})
		if err != nil {
			return fmt.Errorf("create index on %s: %w", idx.field, classify(err))
		}
	}

	return nil
}

// missingIndexes returns the payload indexes absent from schema.
func missingIndexes(schema map[string]*qdrant.PayloadSchemaInfo) []payloadIndex {
	var missing []payloadIndex
	for _, idx := range payloadIndexes {
		if _, ok := schema[idx.field]; !ok {
			missing = append(missing, idx)
		}
	}
	return missing
}

// DeleteCollection removes the collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	return classify(s.client.DeleteCollection(ctx, s.collection))
}

// Ingest implements Store. Chunks are written in one batch; if the batch is
// rejected each chunk is retried alone so the failure is pinned to the
// chunk that caused it.
func (s *QdrantStore) Ingest(ctx context.Context, chunks []chunk.CodeChunk) (*IngestReport, error) {
	report := &IngestReport{Submitted: len(chunks)}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	indexes := make([]int, 0, len(chunks))

	for i := range chunks {
		c := &chunks[i]
		if err := c.ValidateForIndex(); err != nil {
			report.fail(i, c, err)
			continue
		}

		point, err := toPoint(c)
		if err != nil {
			report.fail(i, c, err)
			continue
		}

		points = append(points, point)
		indexes = append(indexes, i)
	}

	if len(points) == 0 {
		return report, nil
	}

	err := s.upsert(ctx, points)
	if err == nil {
		report.Written = len(points)
		return report, nil
	}
	if err = classify(err); errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNoCollection) {
		return nil, err
	}

	s.logger.Warn("batch upsert failed, retrying per chunk", "collection", s.collection, "count", len(points), "error", err)

	for j, point := range points {
		if err := s.upsert(ctx, []*qdrant.PointStruct{point}); err != nil {
			i := indexes[j]
			report.fail(i, &chunks[i], classify(err))
			continue
		}
		report.Written++
	}

	return report, nil
}

func (s *QdrantStore) upsert(ctx context.Context, points []*qdrant.PointStruct) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return err
}

func toPoint(c *chunk.CodeChunk) (*qdrant.PointStruct, error) {
	payload, err := qdrant.TryValueMap(map[string]any{
		"name":       c.Name,
		"type":       string(c.Kind),
		"code":       c.Code,
		"start_line": c.StartLine,
		"end_line":   c.EndLine,
		"file_path":  c.FilePath,
		"repo":       c.Repo,
	})
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewID(uuid.NewString()),
		Vectors: qdrant.NewVectors(c.Embedding...),
		Payload: payload,
	}, nil
}

// Nearest implements Store.
func (s *QdrantStore) Nearest(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.collection, classify(err))
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:    r.GetId().GetUuid(),
			Chunk: payloadToChunk(r.GetPayload()),
			Score: float64(r.GetScore()),
		}
	}

	return hits, nil
}

// Scan implements Store. Points come back in id order, page by page.
func (s *QdrantStore) Scan(ctx context.Context, fn func(Hit) error) error {
	var offset *qdrant.PointId

	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return fmt.Errorf("scroll %s: %w", s.collection, classify(err))
		}

		for _, p := range points {
			c := payloadToChunk(p.GetPayload())
			c.Embedding = denseVector(p.GetVectors())

			if err := fn(Hit{ID: p.GetId().GetUuid(), Chunk: c}); err != nil {
				return err
			}
		}

		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData() //nolint:staticcheck // servers before 1.14 only fill the deprecated field
}

// Stats implements Store.
func (s *QdrantStore) Stats(ctx context.Context) (*Stats, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("collection info %s: %w", s.collection, classify(err))
	}

	vectorSize := 0
	if params := info.GetConfig().GetParams(); params != nil {
		if vecParams := params.GetVectorsConfig().GetParams(); vecParams != nil {
			vectorSize = int(vecParams.GetSize())
		}
	}

	return &Stats{
		PointsCount: int64(info.GetPointsCount()),
		VectorSize:  vectorSize,
		Status:      info.GetStatus().String(),
	}, nil
}

func payloadToChunk(payload map[string]*qdrant.Value) chunk.CodeChunk {
	getString := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}

	return chunk.CodeChunk{
		Name:      getString("name"),
		Kind:      chunk.Kind(getString("type")),
		Code:      getString("code"),
		StartLine: getInt("start_line"),
		EndLine:   getInt("end_line"),
		FilePath:  getString("file_path"),
		Repo:      getString("repo"),
	}
}

// classify maps gRPC transport failures onto the package's sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case codes.NotFound:
		return fmt.Errorf("%w: %w", ErrNoCollection, err)
	}
	return err
}
