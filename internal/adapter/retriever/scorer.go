package retriever

import (
	"math"
	"sort"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when the dimensions
// differ or either norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scorer scores chunks against a query by vector similarity where both
// sides carry comparable embeddings, and by lexical overlap otherwise.
type Scorer struct {
	tokenizer port.Tokenizer
}

func NewScorer(tokenizer port.Tokenizer) *Scorer {
	return &Scorer{tokenizer: tokenizer}
}

// LexicalScore is the fraction of distinct query tokens found in text.
func (s *Scorer) LexicalScore(query, text string) float64 {
	return overlap(distinct(s.tokenizer.Tokenize(query)), s.tokenizer.TokenSet(text))
}

// Score scores every chunk. queryVec may be nil when the query could not be
// embedded, in which case every chunk is scored lexically. A chunk whose
// embedding dimension differs from the query's is scored lexically too.
func (s *Scorer) Score(query string, queryVec []float32, chunks []domain.Chunk) []domain.ScoredChunk {
	queryTokens := distinct(s.tokenizer.Tokenize(query))

	scored := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if vec, ok := c.Embedding.Vector(); ok && len(queryVec) > 0 && len(vec) == len(queryVec) {
			scored = append(scored, domain.ScoredChunk{
				Chunk:    c,
				Score:    CosineSimilarity(queryVec, vec),
				Strategy: domain.StrategyVector,
			})
			continue
		}
		scored = append(scored, domain.ScoredChunk{
			Chunk:    c,
			Score:    overlap(queryTokens, s.tokenizer.TokenSet(c.Text)),
			Strategy: domain.StrategyLexical,
		})
	}
	return scored
}

// Sort orders results by score descending, then chunk index, then filename.
func Sort(results []domain.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.DocumentFilename < b.Chunk.DocumentFilename
	})
}

func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func overlap(queryTokens []string, chunkTokens map[string]struct{}) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range queryTokens {
		if _, ok := chunkTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}
