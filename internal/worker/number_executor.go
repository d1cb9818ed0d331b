package worker

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"math/rand/v2"
)

// Значения number_crunching по умолчанию.
const (
	defaultFibonacciN = 10
	defaultPrimeLimit = 100
	defaultMatrixSize = 100
	defaultMatrixSeed = 42
	maxMatrixSize     = 1000
	maxFibonacciN     = 1000
	maxPrimeLimit     = 10_000_000
)

// NumberExecutor — executor для number_crunching.
//
// Config (из payload):
//   - operation: fibonacci (n), prime_numbers (limit), matrix_multiplication (size, seed),
//     statistical_analysis (data), custom_calculation (code); иначе сумма квадратов 0..999
type NumberExecutor struct {
	// Python выполняет custom_calculation.
	Python *ScriptExecutor
}

// Execute выполняет вычисление.
func (e *NumberExecutor) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(ctx)
	}

	switch getString(payload, "operation", "default") {
	case "fibonacci":
		n := getInt(payload, "n", defaultFibonacciN)
		if n > maxFibonacciN {
			return nil, fmt.Errorf("%w: n must be at most %d", ErrInvalidPayload, maxFibonacciN)
		}
		seq := Fibonacci(n)
		return &ExecutionResult{
			Logs:    fmt.Sprintf("Fibonacci sequence up to %d: %v", n, seq),
			Outputs: map[string]any{"sequence": seq},
		}, nil

	case "prime_numbers":
		limit := getInt(payload, "limit", defaultPrimeLimit)
		if limit > maxPrimeLimit {
			return nil, fmt.Errorf("%w: limit must be at most %d", ErrInvalidPayload, maxPrimeLimit)
		}
		primes := Primes(limit)
		head := primes[:min(10, len(primes))]
		return &ExecutionResult{
			Logs:    fmt.Sprintf("Prime numbers up to %d: %v... (total: %d)", limit, head, len(primes)),
			Outputs: map[string]any{"count": len(primes)},
		}, nil

	case "matrix_multiplication":
		size := getInt(payload, "size", defaultMatrixSize)
		if size <= 0 || size > maxMatrixSize {
			return nil, fmt.Errorf("%w: size must be in 1..%d", ErrInvalidPayload, maxMatrixSize)
		}
		seed := uint64(getInt(payload, "seed", defaultMatrixSeed))
		stats, err := MatrixMultiply(ctx, size, seed)
		if err != nil {
			return nil, err
		}
		return &ExecutionResult{
			Logs:    fmt.Sprintf("Matrix multiplication (%dx%d): %v", size, size, stats),
			Outputs: stats,
		}, nil

	case "statistical_analysis":
		data, err := getNumbers(payload, "data")
		if err != nil {
			return nil, err
		}
		stats := Statistics(data)
		return &ExecutionResult{
			Logs:    fmt.Sprintf("Statistical analysis: %v", stats),
			Outputs: stats,
		}, nil

	case "custom_calculation":
		code := getString(payload, "code", "")
		if code == "" {
			return nil, fmt.Errorf("%w: no custom calculation code provided", ErrInvalidPayload)
		}
		if e.Python == nil {
			return nil, fmt.Errorf("%w: python executor not configured", ErrExecutionFailed)
		}
		return e.Python.Run(ctx, code)

	default:
		sum := 0
		for i := 0; i < 1000; i++ {
			sum += i * i
		}
		return &ExecutionResult{
			Logs:    fmt.Sprintf("Default number crunching completed. Sum of squares 0-999: %d", sum),
			Outputs: map[string]any{"sum": sum},
		}, nil
	}
}

// Fibonacci возвращает первые n чисел Фибоначчи.
// Начиная с fib(94) значения не помещаются в uint64, поэтому big.Int.
func Fibonacci(n int) []*big.Int {
	if n <= 0 {
		return []*big.Int{}
	}
	seq := make([]*big.Int, 0, n)
	a, b := big.NewInt(0), big.NewInt(1)
	for i := 0; i < n; i++ {
		seq = append(seq, new(big.Int).Set(a))
		a.Add(a, b)
		a, b = b, a
	}
	return seq
}

// Primes возвращает простые числа до limit включительно (решето Эратосфена).
func Primes(limit int) []int {
	if limit < 2 {
		return []int{}
	}
	composite := make([]bool, limit+1)
	for i := 2; i*i <= limit; i++ {
		if composite[i] {
			continue
		}
		for j := i * i; j <= limit; j += i {
			composite[j] = true
		}
	}

	var primes []int
	for i := 2; i <= limit; i++ {
		if !composite[i] {
			primes = append(primes, i)
		}
	}
	return primes
}

// MatrixMultiply перемножает две случайные матрицы size×size со значениями 1..10.
// Матрицы генерируются из PCG с заданным seed, поэтому результат детерминирован.
func MatrixMultiply(ctx context.Context, size int, seed uint64) (map[string]any, error) {
	rng := rand.New(rand.NewPCG(seed, seed))

	fill := func() [][]int64 {
		m := make([][]int64, size)
		for i := range m {
			m[i] = make([]int64, size)
			for j := range m[i] {
				m[i][j] = rng.Int64N(10) + 1
			}
		}
		return m
	}
	a, b := fill(), fill()

	var sum int64
	minEl, maxEl := int64(math.MaxInt64), int64(math.MinInt64)
	for i := 0; i < size; i++ {
		// проверяем отмену построчно: при size=1000 это ~10^9 операций
		if err := ctx.Err(); err != nil {
			return nil, contextError(ctx)
		}
		for j := 0; j < size; j++ {
			var cell int64
			for k := 0; k < size; k++ {
				cell += a[i][k] * b[k][j]
			}
			sum += cell
			minEl = min(minEl, cell)
			maxEl = max(maxEl, cell)
		}
	}

	return map[string]any{
		"size":            size,
		"sum_of_elements": sum,
		"max_element":     maxEl,
		"min_element":     minEl,
	}, nil
}

// Statistics считает описательную статистику. Пустой набор заменяется на 0..99.
func Statistics(data []float64) map[string]any {
	if len(data) == 0 {
		data = make([]float64, 100)
		for i := range data {
			data[i] = float64(i)
		}
	}

	n := float64(len(data))
	sum, minV, maxV := 0.0, data[0], data[0]
	for _, v := range data {
		sum += v
		minV = min(minV, v)
		maxV = max(maxV, v)
	}
	mean := sum / n

	variance := 0.0
	for _, v := range data {
		variance += (v - mean) * (v - mean)
	}
	variance /= n

	return map[string]any{
		"count":         len(data),
		"mean":          round4(mean),
		"variance":      round4(variance),
		"std_deviation": round4(math.Sqrt(variance)),
		"min":           minV,
		"max":           maxV,
		"sum":           sum,
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// getNumbers извлекает массив чисел из payload.
func getNumbers(m map[string]any, key string) ([]float64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, 0, len(v))
		for i, item := range v {
			f, ok := item.(float64)
			if !ok {
				if n, isInt := item.(int); isInt {
					f = float64(n)
				} else {
					return nil, fmt.Errorf("%w: %s[%d] is not a number", ErrInvalidPayload, key, i)
				}
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an array of numbers", ErrInvalidPayload, key)
	}
}
