package tools

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
)

const maxSearchResults = 10

// SearchOptions configures the Google Custom Search tool.
type SearchOptions struct {
	APIKey   string
	EngineID string
	BaseURL  string
}

// SearchResult is one hit returned to the model.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Search queries the Google Custom Search JSON API.
type Search struct {
	opts   SearchOptions
	client *http.Client
	logger zerolog.Logger
}

func NewSearch(opts SearchOptions, client *http.Client, logger zerolog.Logger) *Search {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Search{opts: opts, client: client, logger: logger}
}

func (s *Search) Declarations() []toolmanager.Declaration {
	return []toolmanager.Declaration{{
		Name:        "googleSearch",
		Description: "Searches the web and returns the top results with their links.",
		Parameters: toolmanager.Object(
			toolmanager.Parameter{Name: "query", Type: "string", Description: "The search query.", Required: true},
			toolmanager.Parameter{Name: "numResults", Type: "integer", Description: "How many results to return, at most 10."},
		),
	}}
}

func (s *Search) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}
	if s.opts.APIKey == "" || s.opts.EngineID == "" {
		return nil, toolmanager.ExecutionError("search is not configured: missing tools.search.api_key or tools.search.engine_id")
	}

	num := optionalInt(args, "numResults", 5)
	if num < 1 {
		num = 1
	}
	if num > maxSearchResults {
		num = maxSearchResults
	}

	q := url.Values{}
	q.Set("key", s.opts.APIKey)
	q.Set("cx", s.opts.EngineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))

	var body struct {
		Items []SearchResult `json:"items"`
	}
	if err := getJSON(ctx, s.client, "Search", s.opts.BaseURL+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	s.logger.Debug().Int("results", len(body.Items)).Msg("Search completed")

	results := body.Items
	if results == nil {
		results = []SearchResult{}
	}
	if len(results) > num {
		results = results[:num]
	}
	return results, nil
}
