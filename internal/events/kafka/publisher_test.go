package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
	shelfkafka "shelf/internal/events/kafka"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisher_PublishCollectionChanged(t *testing.T) {
	w := &recordingWriter{}
	pub := shelfkafka.NewPublisherWithWriter(w)
	event := &domain.CollectionChangedEvent{
		EventID:      uuid.New(),
		CollectionID: uuid.New(),
		Generation:   3,
		Change:       domain.ChangeProductsAdded,
		OccurredAt:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, pub.PublishCollectionChanged(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, event.CollectionID.String(), string(msg.Key))
	assert.Equal(t, "collection.products_added", string(msg.Headers[0].Value))

	var decoded domain.CollectionChangedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, *event, decoded)
}

func TestPublisher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	pub := shelfkafka.NewPublisherWithWriter(w)

	err := pub.PublishCollectionChanged(context.Background(), &domain.CollectionChangedEvent{CollectionID: uuid.New()})

	assert.ErrorContains(t, err, "broker down")
}

func TestPublisher_Close(t *testing.T) {
	w := &recordingWriter{}

	require.NoError(t, shelfkafka.NewPublisherWithWriter(w).Close())

	assert.True(t, w.closed)
}
