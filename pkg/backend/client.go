// Package backend provides the HTTP client for the conversation backend's
// send and result endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
)

// ErrResultPending 表示后端返回 202，结果尚未生成。
var ErrResultPending = errors.New("result not ready")

// StatusError 是后端返回非预期状态码时的错误。
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.Status, e.Body)
}

// Client defines the two calls of the submit-then-poll protocol.
type Client interface {
	// Send 把用户消息交给后端排队，只关心是否被接受。
	Send(ctx context.Context, req model.SendRequest) error
	// FetchResult 查询某个会话的结果。200 时返回原始 JSON；202 时返回 ErrResultPending。
	FetchResult(ctx context.Context, sessionID string) ([]byte, error)
}

type httpClient struct {
	cfg    config.BackendConfig
	client *http.Client
}

// NewClient creates a backend client. A zero RequestTimeout leaves requests
// bounded only by the caller's context.
func NewClient(cfg config.BackendConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *httpClient) Send(ctx context.Context, req model.SendRequest) error {
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SendURL, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call send api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: "send", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	// 响应体没有约定，读完以便复用连接
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *httpClient) FetchResult(ctx context.Context, sessionID string) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.ResultURL, "/") + "/" + url.PathEscape(sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create result request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call result api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read result body: %w", err)
		}
		return body, nil
	case http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrResultPending
	default:
		return nil, &StatusError{Op: "result", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}

// IsConnectionRefused reports whether err comes from a refused TCP connection.
func IsConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
