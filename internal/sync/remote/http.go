// Package remote implements the reconciliation endpoint over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// TokenFunc returns a bearer token for the Authorization header.
type TokenFunc func(ctx context.Context) (string, error)

// HTTPEndpoint talks to the remote sync API:
//
//	POST {base}/sync/push
//	GET  {base}/sync/pull?since=&limit=
//	GET  {base}/health
type HTTPEndpoint struct {
	BaseURL string
	Token   TokenFunc
	HTTP    *http.Client
}

// NewHTTPEndpoint creates an endpoint for baseURL. A zero timeout defaults to 30s.
func NewHTTPEndpoint(baseURL string, timeout time.Duration, token TokenFunc) *HTTPEndpoint {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEndpoint{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Push submits a batch of operations.
func (e *HTTPEndpoint) Push(ctx context.Context, req syncpkg.PushRequest) (*syncpkg.PushResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode push request", err)
	}

	var resp syncpkg.PushResponse
	if err := e.do(ctx, http.MethodPost, "/sync/push", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches a page of changes after req.Since.
func (e *HTTPEndpoint) Pull(ctx context.Context, req syncpkg.PullRequest) (*syncpkg.PullResponse, error) {
	q := url.Values{}
	if req.Since != "" {
		q.Set("since", req.Since)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	path := "/sync/pull"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp syncpkg.PullResponse
	if err := e.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the remote answers. It serves as a connectivity probe.
func (e *HTTPEndpoint) Health(ctx context.Context) error {
	return e.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (e *HTTPEndpoint) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, e.BaseURL+path, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.Token != nil {
		tok, err := e.Token(ctx)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrTransport, "failed to obtain token", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	client := e.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, method+" "+path+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.Wrap(apperrors.ErrTransport,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, "invalid response from "+path, err)
	}
	return nil
}

var _ syncpkg.Endpoint = (*HTTPEndpoint)(nil)
