package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/event"
)

// Entry is one journal record: either a handled pipeline event or an emitted
// notification.
type Entry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ExecutionID string    `json:"executionId,omitempty"`
	Pipeline    string    `json:"pipeline,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	Time        time.Time `json:"time"`
}

const (
	kindEvent        = "event"
	kindNotification = "notification"
)

// Journal fans entries out to the Kafka stream and, for notifications, the S3
// archive. Either sink may be nil; a nil *Journal is a no-op, so callers
// never guard their calls.
type Journal struct {
	producer *Producer
	archiver *Archiver
	log      *zap.SugaredLogger
}

func New(producer *Producer, archiver *Archiver, log *zap.SugaredLogger) *Journal {
	return &Journal{producer: producer, archiver: archiver, log: log}
}

// RecordEvent journals one handled pipeline event.
func (j *Journal) RecordEvent(ctx context.Context, ev event.Event) {
	if j == nil || j.producer == nil {
		return
	}
	entry := Entry{
		ID:          uuid.New().String(),
		Kind:        kindEvent,
		ExecutionID: ev.Detail.ExecutionID,
		Pipeline:    ev.Detail.Pipeline,
		Payload:     ev,
		Time:        time.Now().UTC(),
	}
	if err := j.producer.ProduceJSON(ctx, []byte(ev.Detail.ExecutionID), entry); err != nil {
		j.log.Warnw("journal event produce failed", "execution", ev.Detail.ExecutionID, "error", err)
	}
}

// RecordNotification journals an emitted notification and archives it.
func (j *Journal) RecordNotification(ctx context.Context, executionID, channel string, attrs map[string]any) {
	if j == nil {
		return
	}
	entry := Entry{
		ID:          uuid.New().String(),
		Kind:        kindNotification,
		ExecutionID: executionID,
		Channel:     channel,
		Payload:     attrs,
		Time:        time.Now().UTC(),
	}
	if j.producer != nil {
		if err := j.producer.ProduceJSON(ctx, []byte(executionID), entry); err != nil {
			j.log.Warnw("journal notification produce failed", "execution", executionID, "error", err)
		}
	}
	if j.archiver != nil {
		if err := j.archiver.ArchiveEntry(ctx, entry); err != nil {
			j.log.Warnw("journal notification archive failed", "execution", executionID, "error", err)
		}
	}
}

// Close releases the producer.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.producer.Close()
}
