package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getText возвращает значение поля в текстовом виде, "None" если поля нет.
func getText(m map[string]any, key string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return "None"
	}
	return fmt.Sprint(val)
}

// getFloat извлекает число из payload. JSON-числа приходят как float64.
func getFloat(m map[string]any, key string, defaultVal float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// getInt извлекает целое число из payload.
// Числа за пределами int приводятся к границе диапазона.
func getInt(m map[string]any, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case float64:
		switch {
		case math.IsNaN(v):
			return defaultVal
		case v >= math.MaxInt:
			return math.MaxInt
		case v <= math.MinInt:
			return math.MinInt
		}
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return defaultVal
}

// getTimeout извлекает таймаут из поля timeout_sec.
func getTimeout(m map[string]any, defaultVal time.Duration) time.Duration {
	if sec := getFloat(m, "timeout_sec", 0); sec > 0 {
		return time.Duration(sec * float64(time.Second))
	}
	return defaultVal
}

// sleepCtx ждёт d или отмены ctx.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return contextError(ctx)
	}
}

// contextError переводит ошибку контекста в ошибку выполнения.
// Истёкший дедлайн — ErrExecutionTimeout, отмена возвращается как есть.
func contextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
	}
	return err
}

// truncate обрезает строку до указанной длины в байтах, не разрывая UTF-8 символ.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
