package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/textproc"
)

func newBuilder() *Builder {
	return NewBuilder(textproc.New())
}

func training(minDF, maxDF float64) Options {
	return Options{Mode: ModeTraining, MinDocFreq: minDF, MaxDocFreq: maxDF, Language: "en"}
}

func TestBuildTrainingFilters(t *testing.T) {
	texts := []string{
		"apple banana cherry",
		"apple banana durian",
		"apple cherry elderberry",
	}

	c, err := newBuilder().Build(texts, training(2, 0.8))
	require.NoError(t, err)

	// apple appears in every document and exceeds 0.8 * 3; durian and elderberry appear once.
	assert.Equal(t, []string{"banana", "cherry"}, c.Features)
	require.Len(t, c.Rows, 3)
	assert.Equal(t, []TermCount{{Term: 0, Count: 1}, {Term: 1, Count: 1}}, c.Rows[0])
	assert.Equal(t, []TermCount{{Term: 0, Count: 1}}, c.Rows[1])
	assert.Equal(t, []TermCount{{Term: 1, Count: 1}}, c.Rows[2])
}

func TestBuildCollapsePolicy(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		minDF float64
		maxDF float64
		want  []string
	}{
		{
			name:  "corpus smaller than min collapses to one document",
			texts: []string{"kernel scheduler", "kernel memory"},
			minDF: 5,
			maxDF: 1.0,
			want:  []string{"kernel", "memory", "scheduler"},
		},
		{
			name:  "max below min lifts upper bound",
			texts: []string{"kernel scheduler"},
			minDF: 2,
			maxDF: 0.8,
			want:  []string{"kernel", "scheduler"},
		},
		{
			name:  "count bounds",
			texts: []string{"alpha beta", "alpha gamma", "alpha beta", "delta"},
			minDF: 2,
			maxDF: 2,
			want:  []string{"beta"},
		},
		{
			name:  "fractional min",
			texts: []string{"alpha beta", "alpha gamma", "alpha beta", "delta"},
			minDF: 0.5,
			maxDF: 1.0,
			want:  []string{"alpha", "beta"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newBuilder().Build(tt.texts, training(tt.minDF, tt.maxDF))
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Features)
			assert.Len(t, c.Rows, len(tt.texts))
		})
	}
}

func TestBuildEmpty(t *testing.T) {
	for name, texts := range map[string][]string{
		"no texts":     nil,
		"only stops":   {"the and of", "it is"},
		"short tokens": {"a b c", "xy"},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := newBuilder().Build(texts, training(2, 0.8))
			require.NoError(t, err)
			assert.True(t, c.Empty())
			assert.Empty(t, c.Features)
		})
	}
}

func TestBuildAnalysis(t *testing.T) {
	vocab := []string{"banana", "cherry"}
	c, err := newBuilder().Build(
		[]string{"cherry cherry banana mango", "mango papaya", ""},
		Options{Mode: ModeAnalysis, Vocabulary: vocab, Language: "en"},
	)
	require.NoError(t, err)

	assert.Equal(t, vocab, c.Features)
	require.Len(t, c.Rows, 3)
	assert.Equal(t, []TermCount{{Term: 0, Count: 1}, {Term: 1, Count: 2}}, c.Rows[0])
	assert.Empty(t, c.Rows[1])
	assert.Empty(t, c.Rows[2])
	assert.False(t, c.Empty())
}

func TestBuildInvalidOptions(t *testing.T) {
	_, err := newBuilder().Build([]string{"x"}, Options{Mode: ModeAnalysis})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = newBuilder().Build([]string{"x"}, Options{Mode: "other"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTermDocMatrix(t *testing.T) {
	c := &Corpus{
		Features: []string{"a", "b", "c"},
		Rows:     [][]TermCount{{{Term: 0, Count: 2}}, {{Term: 1, Count: 1}, {Term: 2, Count: 3}}},
	}
	m := c.TermDocMatrix()
	r, cols := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 2.0, m.At(0, 0))
	assert.Equal(t, 3.0, m.At(2, 1))
	assert.Equal(t, 0.0, m.At(0, 1))
}

func TestNonEmptyRows(t *testing.T) {
	c := &Corpus{
		Features: []string{"a", "b"},
		Rows:     [][]TermCount{{}, {{Term: 1, Count: 1}}, nil},
	}
	out := c.NonEmptyRows()
	assert.Equal(t, c.Features, out.Features)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, 1, out.Rows[0][0].Term)

	assert.True(t, (&Corpus{}).NonEmptyRows().Empty())
}
