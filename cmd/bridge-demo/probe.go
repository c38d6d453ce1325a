package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// probeDownstream calls GET <base>/health and returns the response status.
// Non-2xx statuses are errors.
func probeDownstream(ctx context.Context, client *http.Client, base string) (int, error) {
	url := strings.TrimSuffix(base, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("probing %s: status %d", url, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
