package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
)

// remote is the shared JSON-over-HTTP plumbing. Every call is bounded by timeout;
// transport failures, timeouts and 5xx answers are domain.ErrRemote.
type remote struct {
	name    string
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func newRemote(name, baseURL string, timeout time.Duration, hc *http.Client) remote {
	if hc == nil {
		hc = &http.Client{}
	}
	return remote{name: name, baseURL: strings.TrimRight(baseURL, "/"), http: hc, timeout: timeout}
}

// do sends the request and decodes a 2xx body into out (when non-nil). It returns the
// status code so callers can map 404 to their own not-found error.
func (r remote) do(ctx context.Context, method, path string, out any) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger.ExternalServiceCall(r.name, method+" "+path)
	status, err := r.roundTrip(ctx, method, path, out)
	logger.ExternalServiceResult(r.name, method+" "+path, err, "status", status)
	return status, err
}

func (r remote) roundTrip(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", r.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", domain.ErrRemote, r.name, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d: %s", domain.ErrRemote, r.name, method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s response: %w", domain.ErrRemote, r.name, err)
	}
	return resp.StatusCode, nil
}
