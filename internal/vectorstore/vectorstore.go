// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/northbound-system/axon/internal/apperr"
)

// Point is the VectorStore-side rendition of spec.md §3's VectorPoint: a
// deterministic id, a fixed-length vector, and an opaque payload the caller
// builds (see internal/pipeline for how chunk/document fields land in it).
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is one ranked hit from queryPoints.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// ScrolledPoint is one row from scrollByUrl (no score).
type ScrolledPoint struct {
	ID      string
	Payload map[string]any
}

// CollectionInfo mirrors spec.md §4.3's getCollectionInfo result.
type CollectionInfo struct {
	Status        string
	PointsCount   uint64
	Dimension     int
	Distance      string
	SegmentsCount uint64
}

// Store is the typed VectorStore adapter spec.md §4.3 describes: collection
// lifecycle, upsert, filtered search/scroll/delete, count. Grounded on the
// teacher's internal/vectordb.QdrantVectorDB, generalized from a single
// hardcoded collection to the caller-chosen collections spec.md requires,
// and extended with the scroll/count/domain-scoped operations the teacher
// never needed for its single-collection use case.
type Store struct {
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
}

// New builds a Store over an existing gRPC connection to Qdrant, matching
// the teacher's habit of taking a pre-dialed *grpc.ClientConn rather than
// owning connection lifecycle itself.
func New(conn *grpc.ClientConn) *Store {
	return &Store{
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
	}
}

// EnsureCollection creates name with cosine distance if absent. If it
// already exists with a different vector size, it returns a DimensionMismatch
// apperr — fatal, per spec.md §4.3.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	info, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	if err == nil && info.Result != nil {
		existing := collectionDimension(info.Result)
		if existing != 0 && existing != dim {
			return apperr.New(apperr.DimensionMismatch, fmt.Sprintf("collection %q has dimension %d, requested %d", name, existing, dim))
		}
		return nil
	}

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("create collection %q", name), err)
	}
	return nil
}

func collectionDimension(info *qdrant.CollectionInfo) int {
	if info.Config == nil || info.Config.Params == nil || info.Config.Params.VectorsConfig == nil {
		return 0
	}
	if params, ok := info.Config.Params.VectorsConfig.Config.(*qdrant.VectorsConfig_Params); ok && params.Params != nil {
		return int(params.Params.Size)
	}
	return 0
}

// UpsertPoints replaces-or-inserts a batch of points. Callers are expected
// to send batches of <=100 (spec.md §4.3).
func (s *Store) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}},
			},
			Payload: toQdrantPayload(p.Payload),
		}
	}

	_, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("upsert %d points into %q", len(points), collection), err)
	}
	return nil
}

// DeleteByUrl removes every point whose payload.url matches url. This is
// the pre-image of a re-embed: EmbedPipeline calls it before upserting the
// freshly chunked document (spec.md §4.4).
func (s *Store) DeleteByUrl(ctx context.Context, collection, url string) error {
	return s.deleteByFilter(ctx, collection, eqFilter("url", url))
}

// DeleteByUrlAndSourceCommand scopes the delete to points that also match
// source_command, so (e.g.) reconciliation never removes a scrape-origin
// document while cleaning up a crawl's stale URLs.
func (s *Store) DeleteByUrlAndSourceCommand(ctx context.Context, collection, url, sourceCommand string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			fieldEquals("url", url),
			fieldEquals("source_command", sourceCommand),
		},
	}
	return s.deleteByFilter(ctx, collection, filter)
}

// DeleteByDomain is the operator-facing bulk delete (spec.md §4.3).
func (s *Store) DeleteByDomain(ctx context.Context, collection, domain string) error {
	return s.deleteByFilter(ctx, collection, eqFilter("domain", domain))
}

func (s *Store) deleteByFilter(ctx context.Context, collection string, filter *qdrant.Filter) error {
	_, err := s.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("delete from %q", collection), err)
	}
	return nil
}

// QueryPoints runs a top-k similarity search, optionally narrowed by a
// payload-equality filter.
func (s *Store) QueryPoints(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]ScoredPoint, error) {
	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         mapFilter(filter),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("search %q", collection), err)
	}

	out := make([]ScoredPoint, 0, len(resp.Result))
	for _, hit := range resp.Result {
		out = append(out, ScoredPoint{
			ID:      pointIDString(hit.Id),
			Score:   hit.Score,
			Payload: fromQdrantPayload(hit.Payload),
		})
	}
	return out, nil
}

// ScrollByUrl returns every point for a url, unordered, used by retrieve
// (spec.md §4.3).
func (s *Store) ScrollByUrl(ctx context.Context, collection, url string) ([]ScrolledPoint, error) {
	var out []ScrolledPoint
	var offset *qdrant.PointId

	for {
		req := &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         eqFilter("url", url),
			Limit:          qdrantUint32Ptr(256),
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
			Offset:         offset,
		}
		resp, err := s.points.Scroll(ctx, req)
		if err != nil {
			return nil, apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("scroll %q", collection), err)
		}
		for _, p := range resp.Result {
			out = append(out, ScrolledPoint{ID: pointIDString(p.Id), Payload: fromQdrantPayload(p.Payload)})
		}
		if resp.NextPageOffset == nil {
			break
		}
		offset = resp.NextPageOffset
	}
	return out, nil
}

// CountByUrl returns the number of points for a url.
func (s *Store) CountByUrl(ctx context.Context, collection, url string) (int, error) {
	return s.count(ctx, collection, eqFilter("url", url))
}

// CountByDomain returns the number of points for a domain.
func (s *Store) CountByDomain(ctx context.Context, collection, domain string) (int, error) {
	return s.count(ctx, collection, eqFilter("domain", domain))
}

// CountPoints returns the total number of points in collection.
func (s *Store) CountPoints(ctx context.Context, collection string) (int, error) {
	return s.count(ctx, collection, nil)
}

func (s *Store) count(ctx context.Context, collection string, filter *qdrant.Filter) (int, error) {
	resp, err := s.points.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         filter,
		Exact:          qdrantBoolPtr(true),
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("count %q", collection), err)
	}
	if resp.Result == nil {
		return 0, nil
	}
	return int(resp.Result.Count), nil
}

// GetCollectionInfo returns the collection's status, point count, vector
// dimension, distance metric, and segment count.
func (s *Store) GetCollectionInfo(ctx context.Context, collection string) (CollectionInfo, error) {
	resp, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return CollectionInfo{}, apperr.Wrap(apperr.BackendUnavailable, fmt.Sprintf("get collection info %q", collection), err)
	}
	if resp.Result == nil {
		return CollectionInfo{}, apperr.New(apperr.BackendUnavailable, fmt.Sprintf("collection %q not found", collection))
	}

	info := CollectionInfo{
		Status:    resp.Result.Status.String(),
		Dimension: collectionDimension(resp.Result),
		Distance:  "Cosine",
	}
	if resp.Result.PointsCount != nil {
		info.PointsCount = *resp.Result.PointsCount
	}
	if resp.Result.SegmentsCount != 0 {
		info.SegmentsCount = uint64(resp.Result.SegmentsCount)
	}
	return info, nil
}

func eqFilter(key, value string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{fieldEquals(key, value)}}
}

func mapFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	f := &qdrant.Filter{}
	for k, v := range filter {
		f.Must = append(f.Must, fieldEquals(k, v))
	}
	return f
}

func fieldEquals(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// toQdrantPayload converts the caller's opaque payload map into Qdrant's
// typed Value wire format. Unknown-shaped values are rendered as strings so
// round-tripping never loses the key (spec.md §9: unknown keys are
// preserved, never interpreted).
func toQdrantPayload(payload map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case nil:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
		default:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return out
}

// PayloadView gives typed accessors over a raw payload map, per spec.md §9:
// implementers should parse payloads into explicit accessors rather than
// trusting shapes read back from JSON/protobuf.
type PayloadView map[string]any

func fromQdrantPayload(payload map[string]*qdrant.Value) PayloadView {
	out := make(PayloadView, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

// GetString returns the string at key, or fallback if absent/wrong-typed.
func (p PayloadView) GetString(key, fallback string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return fallback
}

// GetNumber returns the number at key (accepting int64 or float64), or
// fallback if absent/wrong-typed.
func (p PayloadView) GetNumber(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return fallback
	}
}

// GetBool returns the bool at key, or fallback if absent/wrong-typed.
func (p PayloadView) GetBool(key string, fallback bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return fallback
}

func qdrantUint32Ptr(v uint32) *uint32 { return &v }
func qdrantBoolPtr(v bool) *bool       { return &v }
