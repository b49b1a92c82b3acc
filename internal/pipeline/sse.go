package pipeline

import (
	"bufio"
	"bytes"
	"io"
	"net/http"

	"geminigate/internal/constants"
)

// writeSSEData writes one "data: <payload>\n\n" event and flushes.
func writeSSEData(w http.ResponseWriter, flusher http.Flusher, payload []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// writeSSEDone writes the literal sentinel event that ends every stream.
func writeSSEDone(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := w.Write([]byte("data: [DONE]\n\n")); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// newUpstreamScanner builds a bufio.Scanner sized for line-oriented SSE
// bodies from the upstream, matching the scanner buffer sizing used
// elsewhere in the gateway.
func newUpstreamScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, constants.SSEScannerInitialBufferSize), constants.SSEScannerMaxBufferSize)
	return scanner
}

// nextUpstreamPayload advances scanner to the next line carrying a
// "data: " prefix and returns its trimmed JSON payload. Lines without
// that prefix are ignored, per spec.md §4.5.
func nextUpstreamPayload(scanner *bufio.Scanner) ([]byte, bool) {
	const prefix = "data: "
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte(prefix)) {
			continue
		}
		return bytes.TrimSpace(line[len(prefix):]), true
	}
	return nil, false
}
