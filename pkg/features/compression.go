package features

import (
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// CompressionManager gzips rotated log files in the background so rotation
// itself stays fast. Files are queued by path; a fixed pool of workers
// drains the queue.
type CompressionManager struct {
	mu           sync.Mutex
	queue        chan string
	workers      int
	wg           sync.WaitGroup
	started      bool
	errorHandler func(source, dest, msg string, err error)
	metrics      func()
}

// NewCompressionManager creates a manager with the given worker count.
// Workers are not started until Start is called.
func NewCompressionManager(workers int) *CompressionManager {
	if workers < 1 {
		workers = 1
	}
	return &CompressionManager{
		queue:   make(chan string, 64),
		workers: workers,
	}
}

// SetErrorHandler sets the error reporting callback.
func (c *CompressionManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = handler
}

// SetMetricsHandler sets the callback invoked after each compressed file.
func (c *CompressionManager) SetMetricsHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = handler
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (c *CompressionManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
}

// Stop closes the queue and waits for in-flight compressions to finish.
func (c *CompressionManager) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
}

// Enqueue schedules a rotated file for compression. If the queue is full
// the file is left uncompressed rather than blocking rotation.
func (c *CompressionManager) Enqueue(path string) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}

	select {
	case c.queue <- path:
	default:
		// Queue full; skip compression for this file.
	}
}

func (c *CompressionManager) worker() {
	defer c.wg.Done()

	for path := range c.queue {
		if err := CompressFile(path); err != nil {
			c.mu.Lock()
			handler := c.errorHandler
			c.mu.Unlock()
			if handler != nil {
				handler("compression", path, "Failed to compress rotated file", err)
			}
			continue
		}
		c.mu.Lock()
		metrics := c.metrics
		c.mu.Unlock()
		if metrics != nil {
			metrics()
		}
	}
}

// CompressFile gzips the file at path into path.gz and removes the
// original. The original is kept if compression fails at any step.
func CompressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path + ".gz")
		return err
	}

	return os.Remove(path)
}
