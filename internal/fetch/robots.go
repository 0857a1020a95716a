package fetch

import (
	"context"
	"io"
	"net/http"
)

// maxRobotsBody caps how much of a robots.txt document is read. Real
// documents are tiny; anything larger is hostile or broken.
const maxRobotsBody = 1 << 20

// FetchRobots retrieves a robots.txt document for the exclusion cache. It
// uses the identity pool and per-request deadline like any other fetch but
// skips exclusion checking, session state, and the domain throttle: the
// caller already holds the domain's throttle slot for the task that
// triggered the lookup, so the domain still sees one request at a time.
func (f *Fetcher) FetchRobots(ctx context.Context, robotsURL string) (int, []byte, error) {
	id, err := f.pool.Select()
	if err != nil {
		return 0, nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", id.UserAgent)

	client, err := f.client(id)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
