package smlog

import "time"

// CallLogger reports bucket-scoped procedure calls that took longer than
// the configured threshold. A negative threshold disables reporting.
type CallLogger struct {
	logMinDuration time.Duration
}

func NewCallLogger(logMinDuration time.Duration) *CallLogger {
	return &CallLogger{
		logMinDuration: logMinDuration,
	}
}

func (c *CallLogger) shouldLog(t time.Duration) bool {
	return c != nil && c.logMinDuration >= 0 && t > c.logMinDuration
}

func (c *CallLogger) ReportCall(name string, bucketID uint64, t time.Duration) {
	if c.shouldLog(t) {
		Zero.Info().
			Str("procedure", name).
			Uint64("bucket", bucketID).
			Dur("duration", t).
			Msg("slow call")
	}
}
