package utils

import (
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

// FlushingWriter serializes writes to a console sink and flushes buffered sinks after each one.
type FlushingWriter struct {
	mutex  sync.Mutex
	writer io.Writer
}

// NewFlushingWriter wraps writer. A nil writer yields nil and an already wrapped writer is returned as is.
func NewFlushingWriter(writer io.Writer) io.Writer {
	switch typedWriter := writer.(type) {
	case nil:
		return nil
	case *FlushingWriter:
		return typedWriter
	default:
		return &FlushingWriter{writer: writer}
	}
}

// Write delegates to the underlying writer and flushes it when supported.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.writer == nil {
		return 0, nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	if flushable, supportsFlush := flushingWriter.writer.(flusher); supportsFlush {
		return bytesWritten, flushable.Flush()
	}
	return bytesWritten, nil
}
