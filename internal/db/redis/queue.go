package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/caelum-cloud/geosearch/internal/db"
)

// QueuePush appends a value to the tail of a list-based queue.
func (s *Store) QueuePush(ctx context.Context, queue, value string) error {
	cmd := s.b().Lpush().Key(queue).Element(value).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpLPush, Err: err}
	}
	return nil
}

// QueuePop blocks up to timeout for the next queued value (BRPOP).
// Returns db.ErrQueueEmpty when the wait expires.
func (s *Store) QueuePop(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	cmd := s.b().Brpop().Key(queue).Timeout(timeout.Seconds()).Build()
	arr, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", db.ErrQueueEmpty
		}
		return "", &db.Error{Op: db.OpBRPop, Err: err}
	}
	// BRPOP replies [key, value]
	if len(arr) < 2 {
		return "", db.ErrQueueEmpty
	}
	val, err := arr[1].ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpBRPop, Err: err}
	}
	return val, nil
}

// QueueLen returns the number of pending values in a queue.
func (s *Store) QueueLen(ctx context.Context, queue string) (int64, error) {
	cmd := s.b().Llen().Key(queue).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}
