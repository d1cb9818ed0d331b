package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// TemplateKey — поле payload, включающее рендеринг шаблонов.
// Без "template": true payload передаётся executor'у как есть,
// поэтому "{{" в коде скриптов не трогается.
const TemplateKey = "template"

// TemplateData — данные попытки, доступные шаблонам payload:
//   - {{ .Job.ID }}, {{ .Job.Name }}, {{ .Job.OwnerID }}
//   - {{ .Run.ID }}, {{ .Run.Attempt }}
//   - {{ .Now.Format "2006-01-02" }}
type TemplateData struct {
	Job TemplateJob
	Run TemplateRun

	// Now — момент старта попытки, UTC.
	Now time.Time
}

// TemplateJob — сведения о job.
type TemplateJob struct {
	ID      string
	Name    string
	OwnerID string
}

// TemplateRun — сведения о run.
type TemplateRun struct {
	ID string

	// Attempt — номер попытки, начиная с 1.
	Attempt int
}

var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — значение по умолчанию для пустого аргумента
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"join":    func(sep string, items []string) string { return strings.Join(items, sep) },
	"split":   func(sep, s string) []string { return strings.Split(s, sep) },
	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
	"unix":    func(t time.Time) int64 { return t.Unix() },
	"rfc3339": func(t time.Time) string { return t.Format(time.RFC3339) },
}

// RenderPayload рендерит строковые значения payload, если в нём есть "template": true.
// Исходный payload не изменяется. Ошибка шаблона — ErrInvalidPayload.
func RenderPayload(payload map[string]any, data TemplateData) (map[string]any, error) {
	if enabled, _ := payload[TemplateKey].(bool); !enabled {
		return payload, nil
	}

	rendered, err := renderValue(payload, &data)
	if err != nil {
		return nil, err
	}
	return rendered.(map[string]any), nil
}

// Render рендерит один шаблон. Строки без "{{" возвращаются как есть.
func Render(tmpl string, data *TemplateData) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: template parse: %v", ErrInvalidPayload, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: template render: %v", ErrInvalidPayload, err)
	}
	return buf.String(), nil
}

// renderValue рекурсивно обходит map и slice.
func renderValue(value any, data *TemplateData) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, data)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := renderValue(val, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := renderValue(val, data)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			result[i] = rendered
		}
		return result, nil

	default:
		return value, nil
	}
}
