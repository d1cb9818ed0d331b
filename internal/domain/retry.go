package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Значения RetryPolicy по умолчанию.
const (
	DefaultMaxRetries    = 3
	DefaultBaseDelaySec  = 60.0
	DefaultBackoffFactor = 2.0
)

// RetryPolicy — политика повторных попыток job.
//
// Чистый объект-решение: ShouldRetry и NextDelay не имеют побочных эффектов
// и для одинаковых аргументов всегда возвращают одно и то же.
//
// Незаданные поля (nil) заменяются значениями по умолчанию:
// max_retries=3, base_delay_seconds=60, backoff_factor=2.
type RetryPolicy struct {
	// MaxRetries — максимальное количество повторов (не считая первой попытки).
	MaxRetries *int `json:"max_retries,omitempty"`

	// BaseDelaySeconds — базовая задержка в секундах.
	BaseDelaySeconds *float64 `json:"base_delay_seconds,omitempty"`

	// BackoffFactor — множитель экспоненциальной задержки.
	BackoffFactor *float64 `json:"backoff_factor,omitempty"`

	// MaxDelaySeconds — верхняя граница задержки. 0 — без ограничения.
	MaxDelaySeconds float64 `json:"max_delay_seconds,omitempty"`
}

// ShouldRetry возвращает true, если retryCount < max_retries.
func (p RetryPolicy) ShouldRetry(retryCount int) bool {
	return retryCount < p.maxRetries()
}

// NextDelay возвращает base_delay * backoff_factor^retryCount.
// Рост не ограничен, если не задан MaxDelaySeconds.
func (p RetryPolicy) NextDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	seconds := p.baseDelay() * math.Pow(p.backoffFactor(), float64(retryCount))
	if p.MaxDelaySeconds > 0 && seconds > p.MaxDelaySeconds {
		seconds = p.MaxDelaySeconds
	}

	// time.Duration переполняется примерно на 292 годах
	if seconds >= math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds * float64(time.Second))
}

// WithMaxDelay возвращает копию политики с ограничением задержки,
// если собственное ограничение не задано.
func (p RetryPolicy) WithMaxDelay(maxDelay time.Duration) RetryPolicy {
	if p.MaxDelaySeconds <= 0 && maxDelay > 0 {
		p.MaxDelaySeconds = maxDelay.Seconds()
	}
	return p
}

func (p RetryPolicy) maxRetries() int {
	if p.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *p.MaxRetries
}

func (p RetryPolicy) baseDelay() float64 {
	if p.BaseDelaySeconds == nil || *p.BaseDelaySeconds < 0 {
		return DefaultBaseDelaySec
	}
	return *p.BaseDelaySeconds
}

func (p RetryPolicy) backoffFactor() float64 {
	if p.BackoffFactor == nil || *p.BackoffFactor <= 0 {
		return DefaultBackoffFactor
	}
	return *p.BackoffFactor
}

// UnmarshalJSON принимает также старые имена поля задержки: base_delay и retry_delay.
func (p *RetryPolicy) UnmarshalJSON(data []byte) error {
	type plain RetryPolicy
	var aux struct {
		plain
		BaseDelay  *float64 `json:"base_delay,omitempty"`
		RetryDelay *float64 `json:"retry_delay,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = RetryPolicy(aux.plain)
	if p.BaseDelaySeconds == nil {
		switch {
		case aux.BaseDelay != nil:
			p.BaseDelaySeconds = aux.BaseDelay
		case aux.RetryDelay != nil:
			p.BaseDelaySeconds = aux.RetryDelay
		}
	}
	return nil
}
