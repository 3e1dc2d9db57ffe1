package kafka

import "fmt"

// ErrInvalidTimeBasedOffset is raised when a timestamp-based Seek
// cannot be resolved to a real offset. The core fails loudly here
// rather than silently falling back to "latest" (see DESIGN.md, Open
// Question resolution).
type ErrInvalidTimeBasedOffset struct {
	TopicPartition TopicPartition
	RequestedUnix  int64
}

func (e *ErrInvalidTimeBasedOffset) Error() string {
	return fmt.Sprintf("kafka: no offset resolved for %s at time %d", e.TopicPartition, e.RequestedUnix)
}

// ErrClosed is returned by any Client operation attempted after Close.
var ErrClosed = fmt.Errorf("kafka: client is closed")
