package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	events []Event
	err    error
	panic  bool
}

func (s *recordingSink) Notify(_ context.Context, event Event) error {
	if s.panic {
		panic("sink exploded")
	}
	s.events = append(s.events, event)
	return s.err
}

func TestDispatch(t *testing.T) {
	event := Event{
		Type:    EventApplicationSubmitted,
		UserID:  uuid.New(),
		Message: "applied",
	}

	t.Run("delivers to sink", func(t *testing.T) {
		sink := &recordingSink{}
		Dispatch(context.Background(), sink, event)
		assert.Len(t, sink.events, 1)
		assert.Equal(t, EventApplicationSubmitted, sink.events[0].Type)
	})

	t.Run("nil sink is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Dispatch(context.Background(), nil, event)
		})
	})

	t.Run("sink error is swallowed", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("webhook down")}
		assert.NotPanics(t, func() {
			Dispatch(context.Background(), sink, event)
		})
	})

	t.Run("sink panic is recovered", func(t *testing.T) {
		sink := &recordingSink{panic: true}
		assert.NotPanics(t, func() {
			Dispatch(context.Background(), sink, event)
		})
	})
}

func TestLogSink(t *testing.T) {
	err := LogSink{}.Notify(context.Background(), Event{
		Type:   EventCampaignPaused,
		UserID: uuid.New(),
	})
	assert.NoError(t, err)
}
