package httptransport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// setSSEHeaders configures the response headers required for an SSE body.
// Grounded in sse_writer.go's SetSSEHeaders from the example pack.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sseWriter serialises NotificationPayload frames as SSE `data: <json>\n\n`
// lines, flushing after each one. Grounded in sse_writer.go's sseWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: f}, true
}

func (s *sseWriter) writeFrame(payload NotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse frame: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// isSSE reports whether resp's Content-Type declares an SSE body.
func isSSE(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "text/event-stream")
}

// scanSSE reads body line by line, decoding every `data: ` line as a
// NotificationPayload and invoking onFrame. Non-`data: ` lines (blank lines,
// comments) are ignored. Grounded in anthropic_llm.go's processSSEStream
// from the example pack, simplified: this protocol never splits one event's
// data across multiple `data:` lines, so no accumulation buffer is needed.
func scanSSE(body io.Reader, onFrame func(NotificationPayload) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var payload NotificationPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return fmt.Errorf("decode sse frame: %w", err)
		}
		if err := onFrame(payload); err != nil {
			return err
		}
	}
	return scanner.Err()
}
