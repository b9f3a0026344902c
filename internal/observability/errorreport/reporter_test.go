package errorreport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventSink struct {
	mu     sync.Mutex
	events []*sentry.Event
}

// keep records the event and stops it from leaving the process.
func (s *eventSink) keep(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *eventSink) all() []*sentry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sentry.Event(nil), s.events...)
}

func TestCaptureTagsEvent(t *testing.T) {
	sink := &eventSink{}
	r, err := NewReporter(Options{SampleRate: 1, BeforeSend: sink.keep}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, r.Enabled())

	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-1")
	r.Capture(ctx, errors.New("sweep failed"), map[string]string{"component": "scheduler"})

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "scheduler", events[0].Tags["component"])
	assert.Equal(t, "corr-1", events[0].Tags["correlation_id"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "sweep failed", events[0].Exception[len(events[0].Exception)-1].Value)
}

func TestCaptureIgnoresNilError(t *testing.T) {
	sink := &eventSink{}
	r, err := NewReporter(Options{SampleRate: 1, BeforeSend: sink.keep}, zap.NewNop())
	require.NoError(t, err)

	r.Capture(context.Background(), nil, nil)
	assert.Empty(t, sink.all())
}

func TestDisabledReporter(t *testing.T) {
	r, err := New(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, r.Enabled())
	assert.True(t, r.Flush())
	r.Capture(context.Background(), errors.New("dropped"), nil)

	var none *Reporter
	assert.False(t, none.Enabled())
	none.Capture(context.Background(), errors.New("dropped"), nil)
}
