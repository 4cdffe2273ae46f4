package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/topicmodel/internal/domain"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

// LabelerConfig holds configuration for the Wikipedia labeler.
type LabelerConfig struct {
	Endpoint           string
	MinWordProbability float64
	MaxWords           int
	TopWords           int
	MaxLabels          int
	Timeout            time.Duration
}

// WikipediaLabeler names topics after the article titles their words find on Wikipedia.
type WikipediaLabeler struct {
	client *resty.Client
	cfg    LabelerConfig
}

// NewWikipediaLabeler creates a labeler using the MediaWiki opensearch API.
func NewWikipediaLabeler(cfg *LabelerConfig) *WikipediaLabeler {
	c := LabelerConfig{
		Endpoint:           wikipediaEndpoint,
		MinWordProbability: 0.01,
		MaxWords:           6,
		TopWords:           3,
		MaxLabels:          3,
		Timeout:            10 * time.Second,
	}
	if cfg != nil {
		if cfg.Endpoint != "" {
			c.Endpoint = cfg.Endpoint
		}
		if cfg.MinWordProbability > 0 {
			c.MinWordProbability = cfg.MinWordProbability
		}
		if cfg.MaxWords > 0 {
			c.MaxWords = cfg.MaxWords
		}
		if cfg.TopWords > 0 {
			c.TopWords = cfg.TopWords
		}
		if cfg.MaxLabels > 0 {
			c.MaxLabels = cfg.MaxLabels
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
	}

	client := resty.New()
	client.SetTimeout(c.Timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "topicmodel/1.0")

	return &WikipediaLabeler{client: client, cfg: c}
}

// Label searches with the likely words of a topic and falls back to its top words.
// words must be sorted heaviest first.
func (l *WikipediaLabeler) Label(ctx context.Context, words []domain.WordWeight) ([]string, error) {
	if len(words) == 0 {
		return nil, nil
	}

	var likely []string
	for _, w := range words {
		if w.Weight < l.cfg.MinWordProbability || len(likely) == l.cfg.MaxWords {
			break
		}
		likely = append(likely, w.Word)
	}
	if len(likely) > 0 {
		titles, err := l.search(ctx, strings.Join(likely, " "))
		if err != nil {
			return nil, err
		}
		if len(titles) > 0 {
			return titles, nil
		}
	}

	top := make([]string, 0, l.cfg.TopWords)
	for _, w := range words {
		if len(top) == l.cfg.TopWords {
			break
		}
		top = append(top, w.Word)
	}
	return l.search(ctx, strings.Join(top, " "))
}

// search returns up to MaxLabels article titles matching query.
func (l *WikipediaLabeler) search(ctx context.Context, query string) ([]string, error) {
	var resp []json.RawMessage
	httpResp, err := l.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"action":    "opensearch",
			"search":    query,
			"limit":     strconv.Itoa(l.cfg.MaxLabels),
			"namespace": "0",
			"format":    "json",
		}).
		SetResult(&resp).
		Get(l.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Wikipedia API: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("Wikipedia API error: status %d", httpResp.StatusCode())
	}

	// The response is [query, [titles], [descriptions], [urls]].
	if len(resp) < 2 {
		return nil, nil
	}
	var titles []string
	if err := json.Unmarshal(resp[1], &titles); err != nil {
		return nil, fmt.Errorf("unexpected Wikipedia response: %w", err)
	}
	if len(titles) > l.cfg.MaxLabels {
		titles = titles[:l.cfg.MaxLabels]
	}
	return titles, nil
}
