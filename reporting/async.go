package reporting

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// asyncWriter provides non-blocking file writing. Writes are queued and
// drained by a background goroutine; pending tracks how many queued writes
// have not reached the file yet.
type asyncWriter struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	pending atomic.Int64
}

func newAsyncWriter(path string) (*asyncWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	w := &asyncWriter{
		file:  file,
		queue: make(chan []byte, 100),
	}

	w.wg.Add(1)
	go w.processQueue()

	return w, nil
}

// Write queues data to be written asynchronously.
func (w *asyncWriter) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("async writer is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	w.pending.Add(1)
	w.queue <- dataCopy
	return nil
}

func (w *asyncWriter) processQueue() {
	defer w.wg.Done()

	for data := range w.queue {
		if _, err := w.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
		w.pending.Add(-1)
	}
}

// Synchronized reports whether every queued write has reached the file.
func (w *asyncWriter) Synchronized() bool {
	return w.pending.Load() == 0
}

// Close stops the background writer, drains the queue and closes the file.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.file.Close()
}
