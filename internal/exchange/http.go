package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// fetchJSON performs a single GET against url and decodes the response body
// into out. There is no retry: transient failures surface to the data client,
// which fails fast and leaves retrying to its caller.
//
// HTTP 429 (and 418, which Binance uses for repeat offenders) is reported by
// wrapping ErrRateLimited so it survives classification via errors.Is.
func fetchJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, resp.StatusCode, truncate(body))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

// truncate bounds upstream error bodies so they stay readable in logs and
// error chains.
func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
