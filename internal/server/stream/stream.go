// Package stream delivers ordered, incremental upload status to a client
// over a single long-lived response, decoupled from the HTTP transport.
package stream

import (
	"context"
	"sync"
)

// ProgressStep is the minimum percentage gain between two progress records
// for the same file; smaller gains are suppressed unless the new value
// is 100.
const ProgressStep = 5

// FileProgress reports how far one file's upload has come.
type FileProgress struct {
	File       string `json:"file"`
	FileIndex  int    `json:"fileIndex"`
	TotalFiles int    `json:"totalFiles"`
	Progress   int    `json:"progress"`
}

// FileError reports that one file failed; the rest of the batch continues.
type FileError struct {
	Error   bool   `json:"error"`
	File    string `json:"file"`
	Message string `json:"message"`
}

// Done is the terminal record of a completed upload stream.
type Done struct {
	Message string `json:"message"`
}

// Sink receives serialized records in emit order. Implementations decide
// the wire framing.
type Sink interface {
	WriteEvent(v any) error
}

// Channel is a one-way server-to-client push channel for a single upload
// request. Emits after the client is gone, or after Close, are silent
// no-ops so pipeline cleanup never has to special-case a dead connection.
type Channel struct {
	sink Sink

	mu          sync.Mutex
	gone        bool
	closed      bool
	doneEmitted bool
	goneHandler func()
	lastPercent map[int]int // file index -> last emitted percent

	stopWatch chan struct{}
}

// NewChannel creates a channel writing to the given sink.
func NewChannel(sink Sink) *Channel {
	return &Channel{
		sink:        sink,
		lastPercent: make(map[int]int),
		stopWatch:   make(chan struct{}),
	}
}

// Watch ties the channel to the request context: when the context ends
// before the stream is closed, the channel flips to client-gone.
func (c *Channel) Watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			c.markGone()
		case <-c.stopWatch:
		}
	}()
}

// OnClientGone registers a handler invoked exactly once if the connection
// closes before Done is emitted.
func (c *Channel) OnClientGone(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goneHandler = fn
}

// ClientGone reports whether the client has disconnected.
func (c *Channel) ClientGone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gone
}

func (c *Channel) markGone() {
	c.mu.Lock()
	if c.gone || c.closed || c.doneEmitted {
		c.mu.Unlock()
		return
	}
	c.gone = true
	handler := c.goneHandler
	c.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// Progress emits a FileProgress record, applying the per-file throttling
// rule: percentages are strictly increasing, and a record goes out only
// when the percent gained at least ProgressStep or reached 100.
func (c *Channel) Progress(file string, fileIndex, totalFiles, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone || c.closed {
		return
	}
	last := c.lastPercent[fileIndex]
	if percent <= last {
		return
	}
	if percent-last < ProgressStep && percent != 100 {
		return
	}
	c.lastPercent[fileIndex] = percent
	c.write(FileProgress{File: file, FileIndex: fileIndex, TotalFiles: totalFiles, Progress: percent})
}

// FileError emits an in-stream error record for one file.
func (c *Channel) FileError(file, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone || c.closed {
		return
	}
	c.write(FileError{Error: true, File: file, Message: message})
}

// Done emits the terminal completion record, at most once.
func (c *Channel) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone || c.closed || c.doneEmitted {
		return
	}
	c.doneEmitted = true
	c.write(Done{Message: "Upload complete"})
}

// Close terminates the stream. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopWatch)
}

// write pushes one record to the sink; a failing sink means the client is
// unreachable, so the channel flips to gone. Callers hold c.mu.
func (c *Channel) write(v any) {
	if err := c.sink.WriteEvent(v); err != nil {
		c.gone = true
	}
}
