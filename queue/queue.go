package queue

import (
	"context"
	"errors"
)

// ErrEmpty is returned by Pop when no job id is waiting.
var ErrEmpty = errors.New("queue is empty")

// Queue is a FIFO of job ids. Transport failures are returned as
// *models.QueueConnectionError so callers can back off and reconnect.
type Queue interface {
	Connect(ctx context.Context) error
	Push(ctx context.Context, jobID string) error
	Pop(ctx context.Context) (string, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}
