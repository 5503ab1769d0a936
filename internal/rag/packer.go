package rag

import "unicode/utf8"

// PackOptions 上下文打包预算
type PackOptions struct {
	MaxChars    int
	MaxChunks   int
	PerDocLimit int
}

// DefaultPackOptions 问答默认预算
func DefaultPackOptions() PackOptions {
	return PackOptions{MaxChars: 12000, MaxChunks: 12, PerDocLimit: 4}
}

// PackContext 对命中结果去重并按预算打包
// 第一轮每个文档取首个可用命中保证多样性，第二轮按单文档上限和全局预算补齐。
// 第一个入选的片段总是接受，之后片段累计长度不超过 MaxChars。
func PackContext(hits []SearchHit, opts PackOptions) []ContextBlock {
	blocks := make([]ContextBlock, 0)
	if opts.MaxChars <= 0 || opts.MaxChunks <= 0 || opts.PerDocLimit <= 0 {
		return blocks
	}

	p := &packer{
		opts:      opts,
		perDoc:    make(map[string]int),
		ids:       make(map[string]struct{}),
		snippets:  make(map[string]struct{}),
		selected:  make(map[int]struct{}),
		represent: make(map[string]struct{}),
	}

	for i, hit := range hits {
		if _, ok := p.represent[hit.DocID]; ok {
			continue
		}
		if p.admit(i, hit) {
			p.represent[hit.DocID] = struct{}{}
		}
	}
	for i, hit := range hits {
		if _, ok := p.selected[i]; ok {
			continue
		}
		p.admit(i, hit)
	}
	return p.blocks
}

type packer struct {
	opts      PackOptions
	blocks    []ContextBlock
	used      int
	perDoc    map[string]int
	ids       map[string]struct{}
	snippets  map[string]struct{}
	selected  map[int]struct{}
	represent map[string]struct{}
}

func (p *packer) admit(i int, hit SearchHit) bool {
	if len(p.blocks) >= p.opts.MaxChunks {
		return false
	}
	if hit.DocID == "" || hit.DocVersion == "" || hit.ChunkID < 0 {
		return false
	}
	key := hit.Key()
	if _, dup := p.ids[key]; dup {
		return false
	}
	snippet := Snippet(hit.Snippet, SnippetLimit)
	norm := NormalizeSnippet(snippet)
	if _, dup := p.snippets[norm]; dup {
		return false
	}
	if p.perDoc[hit.DocID] >= p.opts.PerDocLimit {
		return false
	}
	size := utf8.RuneCountInString(snippet)
	if len(p.blocks) > 0 && p.used+size > p.opts.MaxChars {
		return false
	}

	hit.Snippet = snippet
	p.blocks = append(p.blocks, hit)
	p.used += size
	p.perDoc[hit.DocID]++
	p.ids[key] = struct{}{}
	p.snippets[norm] = struct{}{}
	p.selected[i] = struct{}{}
	return true
}
