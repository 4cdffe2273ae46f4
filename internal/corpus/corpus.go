// Package corpus builds term-document frequency representations of text batches.
package corpus

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/timmy/topicmodel/internal/domain"
)

// Mode selects how the vocabulary of a corpus is obtained.
type Mode string

const (
	// ModeTraining builds a fresh vocabulary filtered by document frequency.
	ModeTraining Mode = "training"
	// ModeAnalysis projects texts onto an existing vocabulary.
	ModeAnalysis Mode = "analysis"
)

// Tokenizer is the text preprocessing capability the builder depends on.
type Tokenizer interface {
	Tokenize(text, language string, useLemma bool) []string
	Stopwords(language string) map[string]struct{}
}

// Options controls a Build call.
type Options struct {
	Mode       Mode
	Vocabulary []string // required in analysis mode
	// MinDocFreq is a fraction of the corpus when below 1, a document count otherwise.
	MinDocFreq float64
	// MaxDocFreq is a fraction of the corpus when at most 1, a document count otherwise.
	MaxDocFreq float64
	Language   string
	UseLemma   bool
}

// TermCount is one non-zero cell of a corpus row.
type TermCount struct {
	Term  int
	Count int
}

// Corpus is a sparse document-term representation.
// Row i corresponds to the i-th input text; column j to Features[j].
type Corpus struct {
	Features []string
	Rows     [][]TermCount
}

// Empty reports whether the corpus has no features at all.
func (c *Corpus) Empty() bool {
	return c == nil || len(c.Features) == 0
}

// Len returns the number of rows.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Rows)
}

// NonEmptyRows returns a corpus sharing the features but without rows that have no terms.
func (c *Corpus) NonEmptyRows() *Corpus {
	if c.Empty() {
		return &Corpus{}
	}
	out := &Corpus{Features: c.Features}
	for _, row := range c.Rows {
		if len(row) > 0 {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// TermDocMatrix returns the corpus as a terms x documents CSC matrix.
func (c *Corpus) TermDocMatrix() *sparse.CSC {
	dok := sparse.NewDOK(len(c.Features), len(c.Rows))
	for d, row := range c.Rows {
		for _, tc := range row {
			dok.Set(tc.Term, d, float64(tc.Count))
		}
	}
	return dok.ToCSC()
}

// Builder turns raw texts into a Corpus.
type Builder struct {
	tokenizer Tokenizer
}

// NewBuilder creates a Builder backed by tokenizer.
func NewBuilder(tokenizer Tokenizer) *Builder {
	return &Builder{tokenizer: tokenizer}
}

// Build converts texts into a corpus.
// An empty resulting vocabulary yields an empty corpus and a nil error.
// Parameters:
//   - texts: raw documents; row order follows this slice.
//   - opts: mode, vocabulary and filter bounds.
// Returns:
//   - *Corpus: the term-document representation.
//   - error: non-nil only for invalid options.
func (b *Builder) Build(texts []string, opts Options) (*Corpus, error) {
	switch opts.Mode {
	case ModeTraining:
		return b.buildTraining(texts, opts), nil
	case ModeAnalysis:
		if opts.Vocabulary == nil {
			return nil, fmt.Errorf("%w: analysis mode requires a vocabulary", domain.ErrInvalidInput)
		}
		return b.buildAnalysis(texts, opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown corpus mode %q", domain.ErrInvalidInput, opts.Mode)
	}
}

func (b *Builder) countTerms(text string, opts Options, stop map[string]struct{}) map[string]int {
	counts := make(map[string]int)
	for _, tok := range b.tokenizer.Tokenize(text, opts.Language, opts.UseLemma) {
		if _, skip := stop[tok]; skip {
			continue
		}
		counts[tok]++
	}
	return counts
}

func (b *Builder) buildTraining(texts []string, opts Options) *Corpus {
	stop := b.tokenizer.Stopwords(opts.Language)
	docs := make([]map[string]int, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		docs[i] = b.countTerms(text, opts, stop)
		for term := range docs[i] {
			df[term]++
		}
	}

	minCount, maxCount := docFreqBounds(len(texts), opts.MinDocFreq, opts.MaxDocFreq)

	features := make([]string, 0, len(df))
	for term, n := range df {
		if float64(n) >= minCount && float64(n) <= maxCount {
			features = append(features, term)
		}
	}
	if len(features) == 0 {
		return &Corpus{}
	}
	sort.Strings(features)

	return &Corpus{Features: features, Rows: project(docs, features)}
}

func (b *Builder) buildAnalysis(texts []string, opts Options) *Corpus {
	if len(opts.Vocabulary) == 0 {
		return &Corpus{}
	}
	stop := b.tokenizer.Stopwords(opts.Language)
	docs := make([]map[string]int, len(texts))
	for i, text := range texts {
		docs[i] = b.countTerms(text, opts, stop)
	}
	features := append([]string(nil), opts.Vocabulary...)
	return &Corpus{Features: features, Rows: project(docs, features)}
}

// project maps per-document counts onto feature columns, dropping unknown terms.
func project(docs []map[string]int, features []string) [][]TermCount {
	index := make(map[string]int, len(features))
	for i, f := range features {
		index[f] = i
	}

	rows := make([][]TermCount, len(docs))
	for d, counts := range docs {
		row := make([]TermCount, 0, len(counts))
		for term, n := range counts {
			if col, ok := index[term]; ok {
				row = append(row, TermCount{Term: col, Count: n})
			}
		}
		sort.Slice(row, func(i, j int) bool { return row[i].Term < row[j].Term })
		rows[d] = row
	}
	return rows
}

// docFreqBounds resolves the document frequency filters into document counts.
// When the corpus is not larger than the minimum, the minimum collapses to one
// document; when the maximum falls below the minimum, the maximum is lifted.
func docFreqBounds(n int, minDF, maxDF float64) (float64, float64) {
	if float64(n) <= minDF {
		minDF = 1
	}
	minCount := minDF
	if minDF < 1 {
		minCount = minDF * float64(n)
	}

	maxCount := maxDF
	if maxDF <= 1 {
		maxCount = maxDF * float64(n)
	}
	if maxCount < minCount {
		maxCount = float64(n)
	}
	return minCount, maxCount
}
