package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizePlain(t *testing.T) {
	p := New()
	got := p.Tokenize("The Cat sat on 42 mats, perché? ok", "en", false)
	assert.Equal(t, []string{"the", "cat", "sat", "mats", "perch"}, got)
}

func TestTokenizeLemma(t *testing.T) {
	p := New()

	tests := []struct {
		name     string
		text     string
		language string
		want     []string
	}{
		{"plural nouns", "Classes of boxes and cities", "en", []string{"class", "box", "city"}},
		{"short tokens dropped", "a cat is on the mat", "en", []string{}},
		{"digits split tokens", "model2vec embeddings", "en", []string{"model", "embedding"}},
		{"diacritics folded", "Università delle nazioni", "it", []string{"universita", "delle", "nazione"}},
		{"irregular", "children with knives", "en", []string{"child", "with", "knife"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Tokenize(tt.text, tt.language, true))
		})
	}
}

func TestStopwords(t *testing.T) {
	en := Stopwords("en")
	assert.Contains(t, en, "the")
	assert.Contains(t, en, "don't")

	it := Stopwords("it")
	assert.Contains(t, it, "perché")
	assert.Contains(t, it, "perche")

	assert.Equal(t, en, Stopwords("fr"))
}
