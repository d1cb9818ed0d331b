package worker

import (
	"errors"
	"testing"
	"time"
)

func testTemplateData() TemplateData {
	return TemplateData{
		Job: TemplateJob{ID: "job-1", Name: "Nightly Report", OwnerID: "team-a"},
		Run: TemplateRun{ID: "run-7", Attempt: 2},
		Now: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

// --- Render Tests ---

func TestRender(t *testing.T) {
	data := testTemplateData()

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain string", "no templates here", "no templates here"},
		{"job name", "report for {{ .Job.Name }}", "report for Nightly Report"},
		{"run attempt", "attempt {{ .Run.Attempt }}", "attempt 2"},
		{"date format", `{{ .Now.Format "2006-01-02" }}`, "2026-03-01"},
		{"rfc3339", "{{ rfc3339 .Now }}", "2026-03-01T12:30:00Z"},
		{"unix", "{{ unix .Now }}", "1772368200"},
		{"lower", "{{ lower .Job.Name }}", "nightly report"},
		{"replace", `{{ replace .Job.Name " " "-" }}`, "Nightly-Report"},
		{"default", `{{ default "none" "" }}`, "none"},
		{"json", "{{ json .Run.Attempt }}", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, &data)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	data := testTemplateData()

	for _, tmpl := range []string{
		"{{ .Job.Name ",      // parse error
		"{{ .Job.Missing }}", // unknown field
	} {
		if _, err := Render(tmpl, &data); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("%q: expected ErrInvalidPayload, got %v", tmpl, err)
		}
	}
}

// --- RenderPayload Tests ---

func TestRenderPayload_Disabled(t *testing.T) {
	// Без template: true фигурные скобки в скриптах не трогаются
	payload := map[string]any{
		"type":   TypePythonCode,
		"script": "print(f'{{x}}')",
	}

	got, err := RenderPayload(payload, testTemplateData())
	if err != nil {
		t.Fatalf("RenderPayload: %v", err)
	}
	if got["script"] != "print(f'{{x}}')" {
		t.Errorf("script was modified: %v", got["script"])
	}
}

func TestRenderPayload_Nested(t *testing.T) {
	payload := map[string]any{
		"type":     TypeHTTPRequest,
		"template": true,
		"url":      "http://example.com/jobs/{{ .Job.ID }}",
		"headers":  map[string]any{"X-Run-ID": "{{ .Run.ID }}"},
		"tags":     []any{"{{ .Job.OwnerID }}", 42},
		"retries":  3.0,
	}

	got, err := RenderPayload(payload, testTemplateData())
	if err != nil {
		t.Fatalf("RenderPayload: %v", err)
	}

	if got["url"] != "http://example.com/jobs/job-1" {
		t.Errorf("url = %v", got["url"])
	}
	if got["headers"].(map[string]any)["X-Run-ID"] != "run-7" {
		t.Errorf("headers = %v", got["headers"])
	}
	tags := got["tags"].([]any)
	if tags[0] != "team-a" || tags[1] != 42 {
		t.Errorf("tags = %v", tags)
	}
	if got["retries"] != 3.0 || got["template"] != true {
		t.Errorf("non-string values must be kept: %v", got)
	}

	// Исходный payload не изменён
	if payload["url"] != "http://example.com/jobs/{{ .Job.ID }}" {
		t.Error("source payload was modified")
	}
}

func TestRenderPayload_ErrorNotRetryable(t *testing.T) {
	payload := map[string]any{"template": true, "url": "{{ .Nope }}"}

	_, err := RenderPayload(payload, testTemplateData())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Errorf("template error should not be retryable: %v", err)
	}
}
