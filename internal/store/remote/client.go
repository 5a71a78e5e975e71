package remote

import (
	"context"
	"sort"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	storepkg "github.com/memsearch/memsearch/internal/store"
	"github.com/memsearch/memsearch/internal/tokenizer"
)

// tokenizeForScan and matchCount duplicate the small scan-ranking helpers
// store.go keeps unexported for its own in-process backends; the remote
// backend needs the same fallback lexical ranking (the wire protocol has no
// native FTS engine to delegate to) but lives in a separate package.
func tokenizeForScan(query string) []string {
	return tokenizer.Tokenize(query)
}

func matchCount(u *memory.Unit, terms []string) int {
	haystack := strings.ToLower(u.Content + " " + strings.Join(u.Topics, " ") + " " + strings.Join(u.Entities, " "))
	count := 0
	for _, term := range terms {
		count += strings.Count(haystack, term)
	}
	return count
}

const (
	serviceName  = "memsearch.vectordb.v1.VectorDB"
	methodUpsert = "/" + serviceName + "/Upsert"
	methodDelete = "/" + serviceName + "/Delete"
	methodScan   = "/" + serviceName + "/Scan"
)

// invoker is the subset of grpc.ClientConnInterface the client needs; tests
// substitute a fake that never touches the network.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Store is a MemoryStore backed by a remote vector database speaking the
// point/payload/filter-tree protocol over gRPC. Soft delete and
// full-text search have no native counterpart on a pure vector store, so
// both are emulated on top of Scan: soft delete flips a payload flag and
// re-upserts the point, and SearchFTS pulls the filtered set back and
// ranks it by local term-frequency the same way the in-process backends do
// when they have no engine-side lexical index either.
type Store struct {
	conn      invoker
	closer    func() error
	dimension int
}

var _ storepkg.MemoryStore = (*Store)(nil)

// Dial opens an insecure gRPC connection to target and wraps it as a
// MemoryStore. Production deployments are expected to layer TLS transport
// credentials in via DialOptions of their own; this mirrors the unix-socket,
// insecure-by-default dial used for the other local-process RPC link in
// this codebase's lineage.
func Dial(ctx context.Context, target string, dimension int, opts ...grpc.DialOption) (*Store, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, memerr.UpstreamErr(err, "dial remote vector store %s", target)
	}
	return &Store{conn: conn, closer: conn.Close, dimension: dimension}, nil
}

// New wraps an existing invoker (typically a *grpc.ClientConn, or a fake in
// tests) without dialing.
func New(conn invoker, dimension int, closer func() error) *Store {
	if closer == nil {
		closer = func() error { return nil }
	}
	return &Store{conn: conn, dimension: dimension, closer: closer}
}

func (s *Store) Dimension() int { return s.dimension }

func (s *Store) Close() error { return s.closer() }

func (s *Store) validate(u *memory.Unit) error {
	if u.ID == "" {
		return memerr.Invalid("unit id is required")
	}
	if s.dimension > 0 && u.Embedding != nil && len(u.Embedding) != s.dimension {
		return memerr.ShapeErr("embedding has %d dims, collection requires %d", len(u.Embedding), s.dimension)
	}
	return nil
}

func (s *Store) upsertPoints(ctx context.Context, points []Point) error {
	encoded := make([]any, len(points))
	for i, p := range points {
		ps, err := pointToStruct(p)
		if err != nil {
			return err
		}
		encoded[i] = ps
	}
	req, err := structpb.NewStruct(map[string]any{"points": encoded})
	if err != nil {
		return memerr.Wrap(memerr.Internal, "encode upsert request", err)
	}
	resp := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, methodUpsert, req, resp); err != nil {
		return memerr.UpstreamErr(err, "upsert %d point(s)", len(points))
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, unit *memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	if err := s.validate(unit); err != nil {
		return err
	}
	return s.upsertPoints(ctx, []Point{unitToPoint(unit)})
}

func (s *Store) UpsertBatch(ctx context.Context, units []*memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	for _, u := range units {
		if err := s.validate(u); err != nil {
			return err
		}
	}
	points := make([]Point, len(units))
	for i, u := range units {
		points[i] = unitToPoint(u)
	}
	return s.upsertPoints(ctx, points)
}

// scan issues the Scan RPC: filter tree plus an optional query vector
// (nil means metadata-only scan, used by Get/GetMany/CountForOwner/
// SearchFTS) and returns the decoded points alongside parallel cosine
// scores (zero when no query vector was supplied).
func (s *Store) scan(ctx context.Context, filter FilterTree, queryVec []float32, topK int) ([]Point, []float64, error) {
	filterStruct, err := filterToStruct(filter)
	if err != nil {
		return nil, nil, err
	}
	reqFields := map[string]any{"filter": filterStruct, "top_k": float64(topK)}
	if queryVec != nil {
		vec := make([]any, len(queryVec))
		for i, f := range queryVec {
			vec[i] = float64(f)
		}
		reqFields["query_vector"] = vec
	}
	req, err := structpb.NewStruct(reqFields)
	if err != nil {
		return nil, nil, memerr.Wrap(memerr.Internal, "encode scan request", err)
	}
	resp := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, methodScan, req, resp); err != nil {
		return nil, nil, memerr.UpstreamErr(err, "scan remote vector store")
	}

	hitsVal, ok := resp.GetFields()["hits"]
	if !ok {
		return nil, nil, nil
	}
	list := hitsVal.GetListValue()
	if list == nil {
		return nil, nil, nil
	}
	points := make([]Point, 0, len(list.Values))
	scores := make([]float64, 0, len(list.Values))
	for _, v := range list.Values {
		hit := v.GetStructValue()
		if hit == nil {
			continue
		}
		pt, err := structToPoint(hit.GetFields()["point"].GetStructValue())
		if err != nil {
			return nil, nil, err
		}
		points = append(points, pt)
		scores = append(scores, hit.GetFields()["score"].GetNumberValue())
	}
	return points, scores, nil
}

func (s *Store) Get(ctx context.Context, id string) (*memory.Unit, error) {
	points, _, err := s.scan(ctx, FilterTree{Must: []Condition{{Key: "id", Value: id}}}, nil, 1)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		if p.ID != id {
			continue
		}
		u, err := pointToUnit(p)
		if err != nil {
			return nil, err
		}
		if u.IsDeleted {
			break
		}
		return u, nil
	}
	return nil, memerr.NotFoundErr("memory %q not found", id)
}

func (s *Store) GetMany(ctx context.Context, ids []string) ([]*memory.Unit, error) {
	wanted := make(map[string]bool, len(ids))
	var should []Condition
	for _, id := range ids {
		wanted[id] = true
		should = append(should, Condition{Key: "id", Value: id})
	}
	points, _, err := s.scan(ctx, FilterTree{Should: should}, nil, len(ids))
	if err != nil {
		return nil, err
	}
	out := make([]*memory.Unit, 0, len(points))
	for _, p := range points {
		if !wanted[p.ID] {
			continue
		}
		u, err := pointToUnit(p)
		if err != nil {
			return nil, err
		}
		if u.IsDeleted {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) GetByContentHash(ctx context.Context, owner, hash string) (*memory.Unit, error) {
	filter := FilterTree{Must: []Condition{
		{Key: "owner_key", Value: owner},
		{Key: "content_hash", Value: hash},
		{Key: "is_deleted", Value: "false"},
	}}
	points, _, err := s.scan(ctx, filter, nil, 1)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		u, err := pointToUnit(p)
		if err != nil {
			return nil, err
		}
		if u.OwnerKey == owner && u.ContentHash == hash && !u.IsDeleted {
			return u, nil
		}
	}
	return nil, memerr.NotFoundErr("no memory for owner %q with hash %s", owner, hash)
}

func (s *Store) Update(ctx context.Context, unit *memory.Unit) error {
	if _, err := s.Get(ctx, unit.ID); err != nil {
		return err
	}
	return s.Upsert(ctx, unit)
}

func (s *Store) Delete(ctx context.Context, id string, hard bool) error {
	if hard {
		req, err := structpb.NewStruct(map[string]any{"id": id})
		if err != nil {
			return memerr.Wrap(memerr.Internal, "encode delete request", err)
		}
		resp := &structpb.Struct{}
		if err := s.conn.Invoke(ctx, methodDelete, req, resp); err != nil {
			return memerr.UpstreamErr(err, "delete %s", id)
		}
		return nil
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	u.IsDeleted = true
	return s.Upsert(ctx, u)
}

func (s *Store) CountForOwner(ctx context.Context, owner string) (int, error) {
	points, _, err := s.scan(ctx, FilterTree{Must: []Condition{{Key: "owner_key", Value: owner}, {Key: "is_deleted", Value: "false"}}}, nil, 0)
	if err != nil {
		return 0, err
	}
	return len(points), nil
}

func (s *Store) List(ctx context.Context, filter memory.Filter, limit int) ([]*memory.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	points, _, err := s.scan(ctx, filterToTree(filter), nil, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*memory.Unit, 0, len(points))
	for _, p := range points {
		u, err := pointToUnit(p)
		if err != nil {
			return nil, err
		}
		// The filter tree carries owner/session/deleted predicates; the
		// time window is re-checked here since the wire filter has no
		// range conditions.
		if !filter.Matches(u) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SearchVector(ctx context.Context, queryVec []float32, filter memory.Filter, limit int, minScore float32) ([]storepkg.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	points, scores, err := s.scan(ctx, filterToTree(filter), queryVec, limit)
	if err != nil {
		return nil, err
	}
	order := sortPointsByScore(points, scores)
	hits := make([]storepkg.VectorHit, 0, len(points))
	for _, i := range order {
		if scores[i] < float64(minScore) {
			continue
		}
		u, err := pointToUnit(points[i])
		if err != nil {
			return nil, err
		}
		hits = append(hits, storepkg.VectorHit{Unit: u, Score: float32(scores[i])})
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) SearchFTS(ctx context.Context, query string, filter memory.Filter, limit int) ([]storepkg.FTSHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	terms := tokenizeForScan(query)
	if len(terms) == 0 {
		return []storepkg.FTSHit{}, nil
	}
	points, _, err := s.scan(ctx, filterToTree(filter), nil, 0)
	if err != nil {
		return nil, err
	}
	type scored struct {
		unit *memory.Unit
		raw  int
	}
	matches := make([]scored, 0, len(points))
	for _, p := range points {
		u, err := pointToUnit(p)
		if err != nil {
			return nil, err
		}
		raw := matchCount(u, terms)
		if raw == 0 {
			continue
		}
		matches = append(matches, scored{unit: u, raw: raw})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].raw != matches[j].raw {
			return matches[i].raw > matches[j].raw
		}
		return matches[i].unit.ID < matches[j].unit.ID
	})
	hits := make([]storepkg.FTSHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, storepkg.FTSHit{Unit: m.unit, Score: 1 / (1 + 1/float32(m.raw))})
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
