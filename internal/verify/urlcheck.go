package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// URLState classifies the outcome of probing a grant's official URL.
type URLState string

const (
	URLStateNoURL       URLState = "no_url"
	URLStateOK          URLState = "ok"
	URLStateBadStatus   URLState = "bad_status"
	URLStateUnreachable URLState = "unreachable"
)

// URLResult is the outcome of the URL validation phase.
type URLResult struct {
	State      URLState
	StatusCode int
	Note       string
}

// Passed reports whether the phase counts as a passing check. A grant with
// no URL on record is not penalized as unreachable.
func (r URLResult) Passed() bool {
	return r.State == URLStateOK || r.State == URLStateNoURL
}

// URLChecker probes official grant URLs with a bounded timeout.
type URLChecker struct {
	http *http.Client
}

// NewURLChecker creates a URLChecker. Timeout bounds the whole probe,
// including redirects.
func NewURLChecker(timeout time.Duration) *URLChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &URLChecker{
		http: &http.Client{Timeout: timeout},
	}
}

// Check probes rawURL and classifies the result. Network failures are part
// of the classification, never an error: the verification protocol must
// complete even under total external-service failure.
func (c *URLChecker) Check(ctx context.Context, rawURL string) URLResult {
	if rawURL == "" {
		return URLResult{State: URLStateNoURL, Note: "no official URL on record"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return URLResult{State: URLStateUnreachable, Note: fmt.Sprintf("invalid URL: %v", err)}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; GrantCheckBot/1.0)")

	resp, err := c.http.Do(req)
	if err != nil {
		return URLResult{State: URLStateUnreachable, Note: fmt.Sprintf("probe failed: %v", err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return URLResult{
			State:      URLStateOK,
			StatusCode: resp.StatusCode,
			Note:       fmt.Sprintf("reachable, HTTP %d", resp.StatusCode),
		}
	}
	return URLResult{
		State:      URLStateBadStatus,
		StatusCode: resp.StatusCode,
		Note:       fmt.Sprintf("reachable but HTTP %d", resp.StatusCode),
	}
}
