package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Tempo/internal/domain"
)

// Типы payload.
const (
	TypePythonCode        = "python_code"
	TypeShellScript       = "shell_script"
	TypeDataProcessing    = "data_processing"
	TypeEmailNotification = "email_notification"
	TypeMLTraining        = "ml_training"
	TypeDummySleep        = "dummy_sleep"
	TypeNumberCrunching   = "number_crunching"
	TypeHTTPRequest       = "http_request"
	TypeDefault           = "default"
)

// Executor — стратегия выполнения одного типа payload.
//
// payload — Job.Payload как есть, включая поле "type".
// ctx несёт общий таймаут выполнения; executor обязан его соблюдать.
type Executor interface {
	Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error)
}

// ExecutionResult — результат успешного выполнения.
type ExecutionResult struct {
	// Logs — текст, сохраняемый в JobRun.Logs.
	Logs string

	// Outputs — структурированные данные результата (для отладки и тестов).
	Outputs map[string]any
}

// ExecConfig — параметры executor'ов по умолчанию.
type ExecConfig struct {
	PythonBin string        // интерпретатор python_code (default: python3)
	ShellBin  string        // интерпретатор shell_script (default: /bin/bash)
	Timeout   time.Duration // таймаут подпроцесса (default: 300s)

	// TimeUnit — единица длительности имитируемых операций (default: 1s).
	// data_processing длится 5 единиц, email_notification — 2, ml_training — 10.
	TimeUnit time.Duration
}

func (c ExecConfig) withDefaults() ExecConfig {
	if c.PythonBin == "" {
		c.PythonBin = "python3"
	}
	if c.ShellBin == "" {
		c.ShellBin = "/bin/bash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 300 * time.Second
	}
	if c.TimeUnit <= 0 {
		c.TimeUnit = time.Second
	}
	return c
}

// Registry — таблица стратегий по типу payload.
type Registry struct {
	executors map[string]Executor
	fallback  Executor
}

// NewRegistry создаёт реестр со всеми встроенными executor'ами.
// Неизвестные типы выполняются DefaultExecutor.
func NewRegistry(cfg ExecConfig) *Registry {
	cfg = cfg.withDefaults()

	python := NewPythonExecutor(cfg.PythonBin, cfg.Timeout)
	shell := NewShellExecutor(cfg.ShellBin, cfg.Timeout)

	r := NewEmptyRegistry()
	r.Register(TypePythonCode, python)
	r.Register(TypeShellScript, shell)
	r.Register(TypeDataProcessing, &SimulatedExecutor{
		Duration: 5 * cfg.TimeUnit,
		Message:  func(p map[string]any) string { return fmt.Sprintf("Data processing for %s completed.", getText(p, "dataset_id")) },
	})
	r.Register(TypeEmailNotification, &SimulatedExecutor{
		Duration: 2 * cfg.TimeUnit,
		Message:  func(p map[string]any) string { return fmt.Sprintf("Email sent to %s.", getText(p, "recipient")) },
	})
	r.Register(TypeMLTraining, &SimulatedExecutor{
		Duration: 10 * cfg.TimeUnit,
		Message: func(p map[string]any) string {
			return fmt.Sprintf("ML model %s trained successfully.", getText(p, "model_name"))
		},
	})
	r.Register(TypeDummySleep, &SleepExecutor{Unit: cfg.TimeUnit})
	r.Register(TypeNumberCrunching, &NumberExecutor{Python: python})
	r.Register(TypeHTTPRequest, &HTTPExecutor{})

	def := &DefaultExecutor{Delay: cfg.TimeUnit}
	r.Register(TypeDefault, def)
	r.SetFallback(def)
	return r
}

// NewEmptyRegistry создаёт реестр без executor'ов.
func NewEmptyRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register добавляет executor для типа payload.
func (r *Registry) Register(payloadType string, executor Executor) {
	r.executors[payloadType] = executor
}

// SetFallback задаёт executor для неизвестных типов.
func (r *Registry) SetFallback(executor Executor) {
	r.fallback = executor
}

// Get возвращает executor для типа payload.
func (r *Registry) Get(payloadType string) (Executor, error) {
	if executor, ok := r.executors[payloadType]; ok {
		return executor, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, payloadType)
}

// Types возвращает зарегистрированные типы в алфавитном порядке.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute выбирает executor по payload["type"] и выполняет payload.
func (r *Registry) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	executor, err := r.Get(domain.PayloadType(payload))
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, payload)
}
