package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublisherWritesKeyedMessage(t *testing.T) {
	t.Parallel()

	writer := &mockWriter{}
	pub := NewWithWriter(writer)
	evt := crawler.BatchEvent{RunID: "run-9", Platform: crawler.PlatformJobKorea, Inserted: 2, JobIDs: []string{"1", "2"}}

	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "JOBKOREA" {
			return false
		}
		var got crawler.BatchEvent
		if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
			return false
		}
		return got.RunID == "run-9" && len(got.JobIDs) == 2 && !msgs[0].Time.IsZero()
	})).Return(nil).Once()
	writer.On("Close").Return(nil).Once()

	require.NoError(t, pub.Publish(context.Background(), evt))
	require.NoError(t, pub.Close())
	writer.AssertExpectations(t)
}

func TestPublisherWrapsWriteError(t *testing.T) {
	t.Parallel()

	writer := &mockWriter{}
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := NewWithWriter(writer).Publish(context.Background(), crawler.BatchEvent{Platform: crawler.PlatformWanted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "topic")
	require.Error(t, err)
	pub, err := New([]string{"localhost:9092"}, "harvest.batches")
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}
