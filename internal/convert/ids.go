package convert

import (
	"fmt"
	"sync/atomic"
)

var completionSeq uint64

// NextCompletionID returns a monotonically increasing chat-completion ID,
// shared across unary responses and every chunk of a single stream.
func NextCompletionID() string {
	n := atomic.AddUint64(&completionSeq, 1)
	return fmt.Sprintf("chatcmpl-%d", n)
}
