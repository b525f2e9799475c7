package filesvc

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/worker"
)

// RegisterLogWorkers subscribes the observational workers: every upload and
// download lifecycle event is decoded and logged so operators (and sibling
// services tailing the logs) see the pipeline progress without querying
// Redis.
func RegisterLogWorkers(rt *worker.Runtime, logger *zap.Logger) {
	rt.Handle(bus.SubjectUploadAll, logEvent(logger, "upload"))
	rt.Handle(bus.SubjectDownloadAll, logEvent(logger, "download"))
}

func logEvent(logger *zap.Logger, action string) worker.Handler {
	return func(_ context.Context, subject string, env bus.Envelope) {
		var payload map[string]any
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			logger.Warn("unreadable event payload",
				zap.String("subject", subject), zap.Error(err))
			return
		}

		fields := []zap.Field{
			zap.String("subject", subject),
			zap.String("event_id", env.EventID),
			zap.String("source", env.Source),
		}
		for _, key := range []string{"job_id", "file_id", "file_name", "user_id", "error_code", "error_message", "download_url"} {
			if v, ok := payload[key]; ok {
				fields = append(fields, zap.Any(key, v))
			}
		}

		logger.Info(action+" event", fields...)
	}
}
