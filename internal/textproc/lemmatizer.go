package textproc

import "strings"

var englishIrregular = map[string]string{
	"children":    "child",
	"women":       "woman",
	"mice":        "mouse",
	"geese":       "goose",
	"feet":        "foot",
	"teeth":       "tooth",
	"data":        "datum",
	"criteria":    "criterion",
	"phenomena":   "phenomenon",
	"analyses":    "analysis",
	"theses":      "thesis",
	"crises":      "crisis",
	"indices":     "index",
	"matrices":    "matrix",
	"vertices":    "vertex",
	"lives":       "life",
	"wives":       "wife",
	"knives":      "knife",
	"leaves":      "leaf",
	"wolves":      "wolf",
	"halves":      "half",
	"shelves":     "shelf",
	"thieves":     "thief",
	"series":      "series",
	"species":     "species",
	"news":        "news",
	"mathematics": "mathematics",
	"physics":     "physics",
}

// englishSuffixes lists noun inflection rewrites, longest first.
var englishSuffixes = []struct{ from, to string }{
	{"sses", "ss"},
	{"ches", "ch"},
	{"shes", "sh"},
	{"xes", "x"},
	{"zes", "z"},
	{"ies", "y"},
}

// italianSuffixes maps common plural endings to their singular.
var italianSuffixes = []struct{ from, to string }{
	{"zioni", "zione"},
	{"sioni", "sione"},
	{"trici", "trice"},
	{"tori", "tore"},
	{"menti", "mento"},
	{"ismi", "ismo"},
	{"isti", "ista"},
}

// Lemmatize reduces a lowercase token to its dictionary form.
// English nouns lose plural inflection; Italian tokens get plural endings normalised.
func Lemmatize(token, language string) string {
	if language == "it" {
		return lemmatizeSuffix(token, italianSuffixes)
	}
	if lemma, ok := englishIrregular[token]; ok {
		return lemma
	}
	if lemma := lemmatizeSuffix(token, englishSuffixes); lemma != token {
		return lemma
	}
	if strings.HasSuffix(token, "s") && !hasAnySuffix(token, "ss", "us", "is", "ous") && len(token) > 4 {
		return token[:len(token)-1]
	}
	return token
}

func lemmatizeSuffix(token string, rules []struct{ from, to string }) string {
	for _, r := range rules {
		if strings.HasSuffix(token, r.from) && len(token) > len(r.from)+1 {
			return token[:len(token)-len(r.from)] + r.to
		}
	}
	return token
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
