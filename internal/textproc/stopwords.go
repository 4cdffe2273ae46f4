package textproc

import (
	"bufio"
	"embed"
	"strings"
	"sync"
)

//go:embed stopwords/*.txt
var stopwordFiles embed.FS

var (
	stopwordsMu    sync.Mutex
	stopwordsCache = map[string]map[string]struct{}{}
)

// Stopwords returns the stop word set for a language.
// Unknown languages fall back to English. Each word is stored both as written
// and folded to ASCII, so the set matches tokens from either tokenizer path.
func Stopwords(language string) map[string]struct{} {
	if language != "it" {
		language = "en"
	}

	stopwordsMu.Lock()
	defer stopwordsMu.Unlock()
	if set, ok := stopwordsCache[language]; ok {
		return set
	}

	set := make(map[string]struct{})
	f, err := stopwordFiles.Open("stopwords/" + language + ".txt")
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			word := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if word == "" {
				continue
			}
			set[word] = struct{}{}
			set[FoldASCII(word)] = struct{}{}
		}
	}
	stopwordsCache[language] = set
	return set
}
