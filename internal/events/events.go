package events

import "go.uber.org/zap"

// Event is what the core publishes for downstream consumers
// (notifications, search indexing). The core never waits on delivery.
type Event struct {
	Kind      string
	ProjectId string
	ActorId   string
	Payload   map[string]string
}

const (
	KindPrMerged        = "pr.merged"
	KindReviewSubmitted = "review.submitted"
	KindIssueOpened     = "issue.opened"
	KindPrOpened        = "pr.opened"
)

// Sink consumes core events fire-and-forget.
type Sink interface {
	Publish(e Event)
}

// LogSink hands events to a background goroutine and logs them.
// Drops on overflow rather than blocking the publishing request.
type LogSink struct {
	log *zap.Logger
	ch  chan Event
}

func NewLogSink(log *zap.Logger) *LogSink {
	s := &LogSink{
		log: log,
		ch:  make(chan Event, 256),
	}
	go s.run()
	return s
}

func (s *LogSink) Publish(e Event) {
	select {
	case s.ch <- e:
	default:
		s.log.Warn("event sink overflow, dropping event", zap.String("kind", e.Kind))
	}
}

func (s *LogSink) run() {
	for e := range s.ch {
		s.log.Info("event published",
			zap.String("kind", e.Kind),
			zap.String("project_id", e.ProjectId),
			zap.String("actor_id", e.ActorId),
		)
	}
}
