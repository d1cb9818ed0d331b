package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxHTTPBody        = 1 << 20
)

// HTTPExecutor — executor для http_request.
//
// Config (из payload):
//   - method (string): HTTP-метод. Default: GET
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Outputs:
//   - status_code (int): HTTP-код ответа
//   - headers (map[string]string): заголовки ответа
//   - body (any): тело ответа (JSON или строка)
type HTTPExecutor struct {
	// Client — HTTP-клиент (default: http.DefaultClient).
	Client *http.Client
}

// Execute выполняет HTTP-запрос. Ответ с кодом >= 400 считается ошибкой выполнения.
func (e *HTTPExecutor) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	method := getString(payload, "method", http.MethodGet)
	url := getString(payload, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidPayload)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(payload, defaultHTTPTimeout))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := payload["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrInvalidPayload, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInvalidPayload, err)
	}

	setHeaders(req, payload)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExecutionFailed, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrExecutionFailed, resp.StatusCode, truncate(string(respBody), 200))
	}

	return &ExecutionResult{
		Logs:    fmt.Sprintf("HTTP %s %s completed with status %d.\nBody: %s", method, url, resp.StatusCode, truncate(string(respBody), 1000)),
		Outputs: buildOutputs(resp, respBody),
	}, nil
}

// buildOutputs формирует outputs из HTTP-ответа.
func buildOutputs(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsedBody,
	}
}

// setHeaders устанавливает заголовки из payload.
func setHeaders(req *http.Request, payload map[string]any) {
	switch h := payload["headers"].(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}
