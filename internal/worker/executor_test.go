package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- HTTPExecutor Tests ---

func TestHTTPExecutor_GET_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("X-Custom", "test-value")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	result, err := executor.Execute(context.Background(), map[string]any{
		"type":   TypeHTTPRequest,
		"method": "GET",
		"url":    server.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outputs["status_code"] != http.StatusOK {
		t.Errorf("expected status 200, got %v", result.Outputs["status_code"])
	}

	headers, ok := result.Outputs["headers"].(map[string]string)
	if !ok {
		t.Fatal("headers should be map[string]string")
	}
	if headers["X-Custom"] != "test-value" {
		t.Errorf("expected X-Custom header, got %v", headers["X-Custom"])
	}

	// body распарсен как JSON
	body, ok := result.Outputs["body"].(map[string]any)
	if !ok {
		t.Fatalf("body should be map, got %T", result.Outputs["body"])
	}
	if body["result"] != "ok" {
		t.Errorf("expected result=ok, got %v", body["result"])
	}
	if !strings.Contains(result.Logs, "status 200") {
		t.Errorf("logs should mention status, got %q", result.Logs)
	}
}

func TestHTTPExecutor_POST_WithBody(t *testing.T) {
	var receivedBody map[string]any
	var receivedContentType, receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		receivedContentType = r.Header.Get("Content-Type")
		receivedAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	result, err := executor.Execute(context.Background(), map[string]any{
		"method":  "POST",
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer token"},
		"body":    map[string]any{"name": "test"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedContentType != "application/json" {
		t.Errorf("expected application/json, got %s", receivedContentType)
	}
	if receivedAuth != "Bearer token" {
		t.Errorf("expected Authorization header, got %q", receivedAuth)
	}
	if receivedBody["name"] != "test" {
		t.Errorf("expected name=test, got %v", receivedBody["name"])
	}
	// не-JSON ответ сохраняется строкой
	if result.Outputs["body"] != "created" {
		t.Errorf("expected body 'created', got %v", result.Outputs["body"])
	}
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	_, err := executor.Execute(context.Background(), map[string]any{"url": server.URL})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP 500: boom") {
		t.Errorf("error should contain status and body, got %q", err.Error())
	}
	if !IsRetryable(err) {
		t.Error("HTTP 500 should be retryable")
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	_, err := executor.Execute(context.Background(), map[string]any{
		"url":         server.URL,
		"timeout_sec": 0.1,
	})
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}
}

func TestHTTPExecutor_MissingURL(t *testing.T) {
	executor := &HTTPExecutor{}
	_, err := executor.Execute(context.Background(), map[string]any{"method": "GET"})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("missing url should not be retryable")
	}
}

func TestHTTPExecutor_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	executor := &HTTPExecutor{}
	_, err := executor.Execute(context.Background(), map[string]any{"url": url})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
}

// --- Simulated Executors Tests ---

func TestSimulatedExecutor_Message(t *testing.T) {
	registry := NewRegistry(ExecConfig{TimeUnit: time.Millisecond})

	tests := []struct {
		payload map[string]any
		want    string
	}{
		{map[string]any{"type": TypeDataProcessing, "dataset_id": "ds-42"}, "Data processing for ds-42 completed."},
		{map[string]any{"type": TypeEmailNotification, "recipient": "a@b.c"}, "Email sent to a@b.c."},
		{map[string]any{"type": TypeMLTraining, "model_name": "resnet"}, "ML model resnet trained successfully."},
		{map[string]any{"type": TypeDataProcessing}, "Data processing for None completed."},
	}

	for _, tt := range tests {
		result, err := registry.Execute(context.Background(), tt.payload)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.payload, err)
		}
		if result.Logs != tt.want {
			t.Errorf("logs = %q, want %q", result.Logs, tt.want)
		}
	}
}

func TestSimulatedExecutor_Duration(t *testing.T) {
	executor := &SimulatedExecutor{
		Duration: 50 * time.Millisecond,
		Message:  func(map[string]any) string { return "done" },
	}

	start := time.Now()
	if _, err := executor.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms, got %v", elapsed)
	}
}

func TestSleepExecutor_Success(t *testing.T) {
	executor := &SleepExecutor{Unit: time.Millisecond}

	result, err := executor.Execute(context.Background(), map[string]any{"duration": 20.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Logs != "Dummy sleep job completed after 20 seconds." {
		t.Errorf("unexpected logs: %q", result.Logs)
	}
}

func TestSleepExecutor_DefaultDuration(t *testing.T) {
	executor := &SleepExecutor{Unit: time.Millisecond}

	result, err := executor.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outputs["duration"] != 5.0 {
		t.Errorf("expected default duration 5, got %v", result.Outputs["duration"])
	}
}

func TestSleepExecutor_ContextCancel(t *testing.T) {
	executor := &SleepExecutor{Unit: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, map[string]any{"duration": 10.0})
	if !IsCanceled(err) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleepExecutor_Deadline(t *testing.T) {
	executor := &SleepExecutor{Unit: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, map[string]any{"duration": 10.0})
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}
}

func TestDefaultExecutor_EchoesPayload(t *testing.T) {
	executor := &DefaultExecutor{}

	result, err := executor.Execute(context.Background(), map[string]any{"type": "mystery", "x": 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.Logs, "Default job executed with data: ") {
		t.Errorf("unexpected logs: %q", result.Logs)
	}
	if result.Outputs["x"] != 1.0 {
		t.Errorf("expected payload echoed, got %v", result.Outputs)
	}
}

func TestDefaultExecutor_NilPayload(t *testing.T) {
	executor := &DefaultExecutor{}

	result, err := executor.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outputs == nil {
		t.Error("outputs should not be nil")
	}
}

// --- NumberExecutor Tests ---

func TestNumberExecutor_Fibonacci(t *testing.T) {
	executor := &NumberExecutor{}

	result, err := executor.Execute(context.Background(), map[string]any{"operation": "fibonacci", "n": 10.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Fibonacci sequence up to 10: [0 1 1 2 3 5 8 13 21 34]"
	if result.Logs != want {
		t.Errorf("logs = %q, want %q", result.Logs, want)
	}
}

func TestNumberExecutor_FibonacciBeyondUint64(t *testing.T) {
	seq := Fibonacci(100)

	// fib(94) уже не помещается в uint64
	if got := seq[94].String(); got != "19740274219868223167" {
		t.Errorf("fib(94) = %s", got)
	}
	if got := seq[99].String(); got != "218922995834555169026" {
		t.Errorf("fib(99) = %s", got)
	}
	for i := 2; i < len(seq); i++ {
		if seq[i].Cmp(seq[i-1]) < 0 {
			t.Fatalf("sequence decreased at %d", i)
		}
	}
}

func TestNumberExecutor_RejectsHugeInputs(t *testing.T) {
	executor := &NumberExecutor{}

	payloads := []map[string]any{
		{"operation": "fibonacci", "n": 1e15},
		{"operation": "fibonacci", "n": 1e300},
		{"operation": "prime_numbers", "limit": 1e15},
		{"operation": "matrix_multiplication", "size": 1e15},
	}
	for _, payload := range payloads {
		_, err := executor.Execute(context.Background(), payload)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("%v: expected ErrInvalidPayload, got %v", payload, err)
		}
	}
}

func TestNumberExecutor_Primes(t *testing.T) {
	executor := &NumberExecutor{}

	result, err := executor.Execute(context.Background(), map[string]any{"operation": "prime_numbers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Prime numbers up to 100: [2 3 5 7 11 13 17 19 23 29]... (total: 25)"
	if result.Logs != want {
		t.Errorf("logs = %q, want %q", result.Logs, want)
	}
}

func TestNumberExecutor_Matrix(t *testing.T) {
	executor := &NumberExecutor{}
	payload := map[string]any{"operation": "matrix_multiplication", "size": 4.0}

	first, err := executor.Execute(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := executor.Execute(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// фиксированный seed — детерминированный результат
	if first.Outputs["sum_of_elements"] != second.Outputs["sum_of_elements"] {
		t.Error("matrix result should be deterministic")
	}

	// каждый элемент — сумма 4 произведений чисел 1..10
	minEl := first.Outputs["min_element"].(int64)
	maxEl := first.Outputs["max_element"].(int64)
	if minEl < 4 || maxEl > 400 || minEl > maxEl {
		t.Errorf("elements out of range: min=%d max=%d", minEl, maxEl)
	}
}

func TestNumberExecutor_MatrixInvalidSize(t *testing.T) {
	executor := &NumberExecutor{}

	_, err := executor.Execute(context.Background(), map[string]any{"operation": "matrix_multiplication", "size": 0.0})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestNumberExecutor_Statistics(t *testing.T) {
	executor := &NumberExecutor{}

	result, err := executor.Execute(context.Background(), map[string]any{
		"operation": "statistical_analysis",
		"data":      []any{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outputs["mean"] != 5.0 {
		t.Errorf("mean = %v, want 5", result.Outputs["mean"])
	}
	if result.Outputs["std_deviation"] != 2.0 {
		t.Errorf("std_deviation = %v, want 2", result.Outputs["std_deviation"])
	}
	if result.Outputs["count"] != 8 {
		t.Errorf("count = %v, want 8", result.Outputs["count"])
	}
}

func TestNumberExecutor_StatisticsDefaultData(t *testing.T) {
	stats := Statistics(nil)

	if stats["count"] != 100 {
		t.Errorf("count = %v, want 100", stats["count"])
	}
	if stats["mean"] != 49.5 {
		t.Errorf("mean = %v, want 49.5", stats["mean"])
	}
	if stats["sum"] != 4950.0 {
		t.Errorf("sum = %v, want 4950", stats["sum"])
	}
}

func TestNumberExecutor_StatisticsBadData(t *testing.T) {
	executor := &NumberExecutor{}

	_, err := executor.Execute(context.Background(), map[string]any{
		"operation": "statistical_analysis",
		"data":      []any{1.0, "two"},
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestNumberExecutor_CustomWithoutCode(t *testing.T) {
	executor := &NumberExecutor{}

	_, err := executor.Execute(context.Background(), map[string]any{"operation": "custom_calculation"})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestNumberExecutor_Default(t *testing.T) {
	executor := &NumberExecutor{}

	result, err := executor.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Logs != "Default number crunching completed. Sum of squares 0-999: 332833500" {
		t.Errorf("unexpected logs: %q", result.Logs)
	}
}

// --- Registry Tests ---

func TestNewRegistry_DefaultExecutors(t *testing.T) {
	registry := NewRegistry(ExecConfig{})

	for _, typ := range []string{
		TypePythonCode, TypeShellScript, TypeDataProcessing, TypeEmailNotification,
		TypeMLTraining, TypeDummySleep, TypeNumberCrunching, TypeHTTPRequest, TypeDefault,
	} {
		if _, err := registry.Get(typ); err != nil {
			t.Errorf("executor for %q not registered: %v", typ, err)
		}
	}
	if got := len(registry.Types()); got != 9 {
		t.Errorf("expected 9 types, got %d", got)
	}
}

func TestRegistry_UnknownTypeFallsBack(t *testing.T) {
	registry := NewRegistry(ExecConfig{TimeUnit: time.Millisecond})

	result, err := registry.Execute(context.Background(), map[string]any{"type": "unknown_type"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.Logs, "Default job executed") {
		t.Errorf("expected default executor, got %q", result.Logs)
	}
}

func TestRegistry_UnknownTypeWithoutFallback(t *testing.T) {
	registry := NewEmptyRegistry()

	_, err := registry.Get("unknown_type")
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewEmptyRegistry()
	custom := &DefaultExecutor{}
	registry.Register("custom", custom)

	got, err := registry.Get("custom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != custom {
		t.Error("expected registered executor")
	}
}

// --- IsRetryable Tests ---

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrInvalidPayload, false},
		{ErrUnknownType, false},
		{fmt.Errorf("%w: boom", ErrExecutorPanic), false},
		{ErrExecutionFailed, true},
		{ErrExecutionTimeout, true},
		{errors.New("network down"), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
