package translate

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultBatchSize is the number of units translated concurrently by Batch.
const DefaultBatchSize = 6

// Method decides how the units of a page are scheduled.
type Method struct {
	size int // 0 = chain
}

// Chain translates one unit at a time, in order.
var Chain = Method{}

// Batch translates up to size units concurrently; batches run in order.
func Batch(size int) Method {
	if size < 1 {
		size = DefaultBatchSize
	}
	return Method{size: size}
}

// ParseMethod parses "chain", "batch" or "batch:N".
func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "chain":
		return Chain, nil
	case s == "batch" || s == "":
		return Batch(DefaultBatchSize), nil
	case strings.HasPrefix(s, "batch:"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "batch:"))
		if err != nil || n < 1 {
			return Method{}, fmt.Errorf("invalid batch size in %q", s)
		}
		return Batch(n), nil
	default:
		return Method{}, fmt.Errorf("unknown method %q (want chain, batch or batch:N)", s)
	}
}

// IsChain reports whether m is Chain.
func (m Method) IsChain() bool { return m.size == 0 }

// Size returns the batch size, 1 for Chain.
func (m Method) Size() int {
	if m.size == 0 {
		return 1
	}
	return m.size
}

func (m Method) String() string {
	if m.size == 0 {
		return "chain"
	}
	return fmt.Sprintf("batch:%d", m.size)
}

// Plan splits n unit indices into stages. Units within a stage run
// concurrently; stages run one after another.
func (m Method) Plan(n int) [][]int {
	if n <= 0 {
		return nil
	}
	size := m.Size()
	stages := make([][]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		stage := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			stage = append(stage, i)
		}
		stages = append(stages, stage)
	}
	return stages
}
