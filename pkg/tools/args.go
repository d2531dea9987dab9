package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harun/daisy/pkg/toolmanager"
)

func requiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", toolmanager.ExecutionError("missing required argument: %s", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", toolmanager.ExecutionError("argument %s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", toolmanager.ExecutionError("missing required argument: %s", key)
	}
	return s, nil
}

func optionalInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func objectArg(args map[string]any, key string) (map[string]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, toolmanager.ExecutionError("missing required argument: %s", key)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, toolmanager.ExecutionError("argument %s must be an object", key)
	}
	return obj, nil
}

// getJSON performs a GET and decodes a 2xx JSON body into out. Non-2xx
// responses become execution errors carrying the status line. Errors never
// include rawURL since its query string may carry an API key.
func getJSON(ctx context.Context, client *http.Client, api, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return toolmanager.ExecutionError("failed to build %s request", api)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return toolmanager.ExecutionError("%s request failed: %v", api, transportCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return toolmanager.ExecutionError("%s API error: %d %s", api, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return toolmanager.ExecutionError("%s API returned a malformed response: %v", api, err)
	}
	return nil
}

// transportCause strips the request URL from a client error.
func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
