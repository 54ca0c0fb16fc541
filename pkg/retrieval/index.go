// Package retrieval implements a read-only lexical index over the FAQ and
// book-excerpt corpus. The index file is produced offline and loaded once at
// startup; after Load the structure is never mutated, so any number of
// concurrent readers may call Search.
package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

const defaultTopK = 5

// Document is one retrievable chunk. The source tag prefix denotes its
// origin (e.g. "faq" vs book excerpt).
type Document struct {
	ID        string   `json:"id"`
	Source    string   `json:"source"`
	Title     string   `json:"title"`
	ChunkText string   `json:"chunk_text"`
	Tokens    []string `json:"tokens"`
}

// ScoredDocument is a search hit with its accumulated idf score.
type ScoredDocument struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Title     string  `json:"title"`
	ChunkText string  `json:"chunk_text"`
	Score     float64 `json:"score"`
}

// Index holds the loaded corpus and its inverted term index.
type Index struct {
	docs      []Document
	docByID   map[string]Document
	termIndex map[string][]string
}

type indexFile struct {
	Documents []Document          `json:"documents"`
	TermIndex map[string][]string `json:"term_index"`
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Load reads the index file and builds the in-memory snapshot. It is called
// once before serving traffic, so a broken file fails startup instead of the
// first query.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read retriever index: %w", err)
	}
	var file indexFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse retriever index: %w", err)
	}
	idx := &Index{
		docs:      file.Documents,
		docByID:   make(map[string]Document, len(file.Documents)),
		termIndex: file.TermIndex,
	}
	if idx.termIndex == nil {
		idx.termIndex = map[string][]string{}
	}
	for _, d := range file.Documents {
		idx.docByID[d.ID] = d
	}
	return idx, nil
}

// Len reports the corpus size.
func (idx *Index) Len() int { return len(idx.docs) }

// Search scores documents by summed idf of the distinct query tokens they
// contain and returns the top hits. When sourcePrefix is set it is applied as
// a post-filter on the raw top-(topK×3) superset, so a narrow prefix does not
// starve the result set.
func (idx *Index) Search(query string, topK int, sourcePrefix string) []ScoredDocument {
	if topK <= 0 {
		topK = defaultTopK
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []ScoredDocument{}
	}

	n := len(idx.docs)
	scores := map[string]float64{}
	seen := map[string]bool{}
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		docIDs := idx.termIndex[tok]
		if len(docIDs) == 0 {
			continue
		}
		df := len(docIDs)
		idf := math.Log(float64(n+1)/float64(df+1)) + 1.0
		for _, docID := range docIDs {
			scores[docID] += idf
		}
	}
	if len(scores) == 0 {
		return []ScoredDocument{}
	}

	ranked := make([]ScoredDocument, 0, len(scores))
	for docID, score := range scores {
		d, ok := idx.docByID[docID]
		if !ok {
			continue
		}
		ranked = append(ranked, ScoredDocument{
			ID:        d.ID,
			Source:    d.Source,
			Title:     d.Title,
			ChunkText: d.ChunkText,
			Score:     score,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	superset := topK * 3
	if superset > len(ranked) {
		superset = len(ranked)
	}
	ranked = ranked[:superset]
	if prefix := strings.TrimSpace(sourcePrefix); prefix != "" {
		filtered := ranked[:0]
		for _, doc := range ranked {
			if strings.HasPrefix(doc.Source, prefix) {
				filtered = append(filtered, doc)
			}
		}
		ranked = filtered
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}
