package retry

import (
	"math/rand/v2"
	"time"
)

// Policy selects the backoff curve used between retry attempts — spec §4.7.
type Policy string

const (
	PolicyExponential Policy = "exponential"
	PolicyLinear      Policy = "linear"
	PolicyFibonacci   Policy = "fibonacci"
)

// IsValid reports whether p is one of the three recognized policies.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyExponential, PolicyLinear, PolicyFibonacci:
		return true
	default:
		return false
	}
}

// fib returns the n-th Fibonacci number (fib(0)=0, fib(1)=1), computed
// iteratively — attempt counts are small (bounded by MaxRetries) so this
// never needs memoization.
func fib(n int) int64 {
	if n <= 0 {
		return 0
	}
	var a, b int64 = 0, 1
	for i := 1; i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// Delay computes the backoff before retry attempt k+1, following the
// attempt-k curve from spec §4.7, plus uniform jitter in [0, 0.1·delay].
func Delay(policy Policy, k int, base, maxDelay time.Duration) time.Duration {
	var raw time.Duration
	switch policy {
	case PolicyLinear:
		raw = time.Duration(k) * base
	case PolicyFibonacci:
		raw = time.Duration(fib(k+2)) * base
	default: // exponential
		raw = base * time.Duration(1<<uint(k))
	}
	if raw > maxDelay {
		raw = maxDelay
	}
	if raw <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(raw)/10 + 1))
	return raw + jitter
}
