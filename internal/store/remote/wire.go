// Package remote implements the MemoryStore contract against an external
// vector database over gRPC, using the point/payload/filter-tree wire
// protocol: a point is {uuid, vector[D], payload}, search is exact cosine
// similarity over a must/should filter tree, and scores come back in
// [-1, 1] directly from the remote side.
//
// Requests and responses ride as google.golang.org/protobuf's well-known
// structpb.Struct rather than a hand-authored service-specific message set,
// so the wire format stays schema-flexible the way a payload-oriented
// vector store (Qdrant, Milvus, Weaviate) expects while still being real
// protobuf on the wire.
package remote

import (
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
)

// Point mirrors the remote wire point: an id, a dense vector, and an
// arbitrary JSON-shaped payload the server stores and can filter on.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Condition is one leaf of a must/should filter tree: Key "id" matches
// against the point's own id, every other Key matches payload[Key] == Value.
type Condition struct {
	Key   string
	Value string
}

// FilterTree is the remote protocol's must/should condition tree: a point
// matches when every Must condition holds and at least one Should condition
// holds (an empty Should list is treated as "no should constraint").
type FilterTree struct {
	Must   []Condition
	Should []Condition
}

func pointToStruct(p Point) (*structpb.Struct, error) {
	vec := make([]any, len(p.Vector))
	for i, f := range p.Vector {
		vec[i] = float64(f)
	}
	payload := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = v
	}
	s, err := structpb.NewStruct(map[string]any{
		"id":      p.ID,
		"vector":  vec,
		"payload": payload,
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "encode point", err)
	}
	return s, nil
}

func structToPoint(s *structpb.Struct) (Point, error) {
	fields := s.GetFields()
	id := fields["id"].GetStringValue()
	var vec []float32
	if lv := fields["vector"].GetListValue(); lv != nil {
		vec = make([]float32, len(lv.Values))
		for i, v := range lv.Values {
			vec[i] = float32(v.GetNumberValue())
		}
	}
	payload := map[string]any{}
	if ps := fields["payload"].GetStructValue(); ps != nil {
		for k, v := range ps.AsMap() {
			payload[k] = v
		}
	}
	return Point{ID: id, Vector: vec, Payload: payload}, nil
}

func filterToStruct(f FilterTree) (*structpb.Struct, error) {
	toList := func(conds []Condition) []any {
		out := make([]any, len(conds))
		for i, c := range conds {
			out[i] = map[string]any{"key": c.Key, "value": c.Value}
		}
		return out
	}
	s, err := structpb.NewStruct(map[string]any{
		"must":   toList(f.Must),
		"should": toList(f.Should),
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "encode filter", err)
	}
	return s, nil
}

// unitToPoint flattens a memory.Unit into the payload shape the remote side
// understands; every scalar field the filter tree can reference becomes a
// top-level payload key.
func unitToPoint(u *memory.Unit) Point {
	payload := map[string]any{
		"owner_key":    u.OwnerKey,
		"session_key":  u.SessionKey,
		"content":      u.Content,
		"content_hash": u.ContentHash,
		"type":         string(u.Type),
		"importance":   float64(u.Importance),
		"access_count": float64(u.AccessCount),
		"created_at":   u.CreatedAt.Format(isoLayout),
		"updated_at":   u.UpdatedAt.Format(isoLayout),
		"is_deleted":   u.IsDeleted,
		"topics":       toAnySlice(u.Topics),
		"entities":     toAnySlice(u.Entities),
	}
	if u.HasLastAccess() {
		payload["last_accessed_at"] = u.LastAccessedAt.Format(isoLayout)
	}
	for k, v := range u.Metadata {
		payload["meta_"+k] = v
	}
	return Point{ID: u.ID, Vector: u.Embedding, Payload: payload}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// pointToUnit rehydrates a memory.Unit from a remote point's payload. It is
// the inverse of unitToPoint for the fields the wire protocol round-trips.
func pointToUnit(p Point) (*memory.Unit, error) {
	u := &memory.Unit{ID: p.ID, Embedding: p.Vector}
	get := func(key string) string {
		if v, ok := p.Payload[key].(string); ok {
			return v
		}
		return ""
	}
	u.OwnerKey = get("owner_key")
	u.SessionKey = get("session_key")
	u.Content = get("content")
	u.ContentHash = get("content_hash")
	u.Type = memory.Type(get("type"))
	if v, ok := p.Payload["importance"].(float64); ok {
		u.Importance = float32(v)
	}
	if v, ok := p.Payload["access_count"].(float64); ok {
		u.AccessCount = int64(v)
	}
	if v, ok := p.Payload["is_deleted"].(bool); ok {
		u.IsDeleted = v
	}
	var err error
	if u.CreatedAt, err = parseISO(get("created_at")); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseISO(get("updated_at")); err != nil {
		return nil, err
	}
	if raw := get("last_accessed_at"); raw != "" {
		if u.LastAccessedAt, err = parseISO(raw); err != nil {
			return nil, err
		}
	}
	u.Topics = fromAnySlice(p.Payload["topics"])
	u.Entities = fromAnySlice(p.Payload["entities"])
	u.Metadata = map[string]string{}
	for k, v := range p.Payload {
		if rest, ok := cutPrefix(k, "meta_"); ok {
			if s, ok := v.(string); ok {
				u.Metadata[rest] = s
			}
		}
	}
	return u, nil
}

func fromAnySlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

func filterToTree(f memory.Filter) FilterTree {
	var must []Condition
	if f.OwnerKey != "" {
		must = append(must, Condition{Key: "owner_key", Value: f.OwnerKey})
	}
	if f.SessionKey != "" {
		must = append(must, Condition{Key: "session_key", Value: f.SessionKey})
	}
	if !f.IncludeDeleted {
		must = append(must, Condition{Key: "is_deleted", Value: "false"})
	}
	var should []Condition
	for _, t := range f.Types {
		should = append(should, Condition{Key: "type", Value: string(t)})
	}
	return FilterTree{Must: must, Should: should}
}

const isoLayout = time.RFC3339Nano

func parseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return time.Time{}, memerr.Wrap(memerr.Shape, "parse timestamp "+s, err)
	}
	return t, nil
}

// sortPointsByScore sorts (point, score) pairs by descending score, then by
// ascending id for a deterministic tie-break, matching every other backend.
func sortPointsByScore(points []Point, scores []float64) []int {
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		return points[a].ID < points[b].ID
	})
	return idx
}
