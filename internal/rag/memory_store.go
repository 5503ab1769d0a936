package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

const zeroScoreEpsilon = 1e-12

type storedChunk struct {
	docID      string
	docVersion string
	chunkIndex int
	text       string
	snippet    string
	vector     []float64 // 已归一化
	nonZero    bool
	metadata   map[string]any
}

type tenantIndex struct {
	chunks   []*storedChunk
	revision uint64
}

// MemoryVectorStore 进程内向量索引，暴力余弦检索
// 写操作独占，读操作并发
type MemoryVectorStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantIndex
}

// NewMemoryVectorStore 创建进程内向量索引
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{tenants: make(map[string]*tenantIndex)}
}

// Upsert 原子替换 (docID, docVersion) 的全部分块
func (s *MemoryVectorStore) Upsert(_ context.Context, tenant, docID, docVersion string, chunks []ChunkResult, embeddings [][]float32, metadata map[string]any) (int, error) {
	if tenant == "" || docID == "" || docVersion == "" {
		return 0, fmt.Errorf("%w: tenant、doc_id、doc_version 不能为空", ErrInvalidArgument)
	}
	if len(chunks) != len(embeddings) {
		return 0, fmt.Errorf("%w: 分块数 %d 与向量数 %d 不一致", ErrInvalidArgument, len(chunks), len(embeddings))
	}

	fresh := make([]*storedChunk, 0, len(chunks))
	for i, chunk := range chunks {
		vec, nonZero := normalize32(embeddings[i])
		meta := make(map[string]any, len(metadata)+2)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["char_start"] = chunk.CharStart
		meta["char_end"] = chunk.CharEnd
		fresh = append(fresh, &storedChunk{
			docID:      docID,
			docVersion: docVersion,
			chunkIndex: chunk.ChunkIndex,
			text:       chunk.Text,
			snippet:    Snippet(chunk.Text, SnippetLimit),
			vector:     vec,
			nonZero:    nonZero,
			metadata:   meta,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.tenantLocked(tenant)
	kept := make([]*storedChunk, 0, len(idx.chunks)+len(fresh))
	for _, c := range idx.chunks {
		if c.docID == docID && c.docVersion == docVersion {
			continue
		}
		kept = append(kept, c)
	}
	idx.chunks = append(kept, fresh...)
	idx.revision++
	return len(fresh), nil
}

// Search 返回租户内余弦相似度最高的 topK 个分块
func (s *MemoryVectorStore) Search(_ context.Context, tenant string, queryVector []float32, topK int, filters Filters) ([]SearchHit, error) {
	if topK < 1 {
		topK = 1
	}
	query, nonZero := normalize32(queryVector)
	hits := make([]SearchHit, 0)
	if !nonZero {
		return hits, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.tenants[tenant]
	if !ok {
		return hits, nil
	}

	type scored struct {
		chunk *storedChunk
		score float64
	}
	candidates := make([]scored, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		if !c.nonZero || len(c.vector) != len(query) {
			continue
		}
		if !matchFilters(c, filters) {
			continue
		}
		score := dot(c.vector, query)
		if math.Abs(score) <= zeroScoreEpsilon {
			continue
		}
		candidates = append(candidates, scored{chunk: c, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	for _, cand := range candidates {
		c := cand.chunk
		meta := make(map[string]any, len(c.metadata))
		for k, v := range c.metadata {
			meta[k] = v
		}
		title, _ := c.metadata["title"].(string)
		hits = append(hits, SearchHit{
			DocID:      c.docID,
			DocVersion: c.docVersion,
			ChunkID:    c.chunkIndex,
			Score:      cand.score,
			Title:      title,
			Snippet:    c.snippet,
			Metadata:   meta,
		})
	}
	return hits, nil
}

// Delete 删除文档的指定版本或全部版本
func (s *MemoryVectorStore) Delete(_ context.Context, tenant, docID, docVersion string) (int, error) {
	if tenant == "" || docID == "" {
		return 0, fmt.Errorf("%w: tenant、doc_id 不能为空", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.tenants[tenant]
	if !ok {
		return 0, nil
	}
	kept := make([]*storedChunk, 0, len(idx.chunks))
	removed := 0
	for _, c := range idx.chunks {
		if c.docID == docID && (docVersion == "" || c.docVersion == docVersion) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	idx.chunks = kept
	if removed > 0 {
		idx.revision++
	}
	return removed, nil
}

// Revision 租户索引修订号
func (s *MemoryVectorStore) Revision(tenant string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.tenants[tenant]; ok {
		return idx.revision
	}
	return 0
}

// Count 租户内分块数
func (s *MemoryVectorStore) Count(tenant string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.tenants[tenant]; ok {
		return len(idx.chunks)
	}
	return 0
}

func (s *MemoryVectorStore) tenantLocked(tenant string) *tenantIndex {
	idx, ok := s.tenants[tenant]
	if !ok {
		idx = &tenantIndex{}
		s.tenants[tenant] = idx
	}
	return idx
}

func matchFilters(c *storedChunk, filters Filters) bool {
	for key, want := range filters {
		if want == nil {
			continue
		}
		switch key {
		case "doc_id":
			if fmt.Sprint(want) != c.docID {
				return false
			}
		case "doc_version":
			if fmt.Sprint(want) != c.docVersion {
				return false
			}
		case "tags":
			wanted := toStrings(want)
			if len(wanted) == 0 {
				continue
			}
			if !overlaps(wanted, toStrings(c.metadata["tags"])) {
				return false
			}
		default:
			got, ok := c.metadata[key]
			if !ok || got == nil || fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return []string{fmt.Sprint(t)}
	}
}

func overlaps(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
