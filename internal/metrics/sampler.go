package metrics

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// QueueLener reports the current queue depth. Satisfied by *jobstore.Queue.
type QueueLener interface {
	Len(ctx context.Context) (int64, error)
}

// StartQueueSampler schedules a periodic LLEN of the docs queue into
// DocsQueueDepth. The returned scheduler is shut down by the caller on exit.
func StartQueueSampler(queue QueueLener, interval time.Duration, logger *zap.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			n, err := queue.Len(ctx)
			if err != nil {
				logger.Warn("queue depth sample failed", zap.Error(err))
				return
			}
			DocsQueueDepth.Set(float64(n))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	s.Start()
	return s, nil
}
