package providers

import (
	"context"
	"errors"
	"sync"
	"time"
)

const MockName = "mock"

// ErrMockFailure is returned by a MockBackend configured to fail.
var ErrMockFailure = errors.New("mock backend configured to fail")

// MockBackend is a scripted Backend for tests and dry runs.
type MockBackend struct {
	// Models returned by ListModels.
	Models []string

	// Respond produces the full reply for a request; the default echoes a
	// fixed English sentence. The reply is split into Chunks pieces.
	Respond func(req *StreamRequest) string
	Chunks  int

	// Latency is slept before each chunk.
	Latency time.Duration

	// TransientFailures makes the first N calls fail with *UnavailableError
	// after emitting one chunk.
	TransientFailures int

	// FailWith makes every call fail with this error after the first chunk.
	FailWith error

	mu          sync.Mutex
	calls       []StreamRequest
	inFlight    int
	maxInFlight int
	cleared     int
}

// NewMockBackend creates a mock backend with sensible defaults.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Models: []string{"mock-model"},
		Chunks: 3,
	}
}

// Name returns the backend identifier.
func (m *MockBackend) Name() string {
	return MockName
}

// ListModels returns the configured model names.
func (m *MockBackend) ListModels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), m.Models...), nil
}

// Stream emits the scripted reply in chunks.
func (m *MockBackend) Stream(ctx context.Context, req *StreamRequest, onChunk func(string) error) error {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	call := len(m.calls)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	reply := "This is a translated sentence."
	if m.Respond != nil {
		reply = m.Respond(req)
	}
	chunks := splitChunks(reply, m.Chunks)

	for i, c := range chunks {
		if m.Latency > 0 {
			select {
			case <-time.After(m.Latency):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(c); err != nil {
			return err
		}
		if i == 0 {
			if call <= m.TransientFailures {
				return &UnavailableError{Backend: MockName, StatusCode: 503, Message: "model is loading"}
			}
			if m.FailWith != nil {
				return m.FailWith
			}
		}
	}
	return nil
}

// ClearHistory records the call.
func (m *MockBackend) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
}

// Calls returns every request received so far.
func (m *MockBackend) Calls() []StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StreamRequest(nil), m.calls...)
}

// MaxConcurrency returns the largest number of simultaneous Stream calls.
func (m *MockBackend) MaxConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Cleared returns how many times ClearHistory was called.
func (m *MockBackend) Cleared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// splitChunks divides s into at most n pieces on rune boundaries.
func splitChunks(s string, n int) []string {
	runes := []rune(s)
	if n <= 1 || len(runes) <= 1 {
		return []string{s}
	}
	if n > len(runes) {
		n = len(runes)
	}
	size := (len(runes) + n - 1) / n
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

var _ Backend = (*MockBackend)(nil)
