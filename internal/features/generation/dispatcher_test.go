package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stargen.ru/generation-bot/internal/common"
)

// recordSleeper записывает запрошенные задержки, не засыпая.
type recordSleeper struct {
	delays []time.Duration
}

func (s *recordSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestDispatcher_Send_FirstAttempt(t *testing.T) {
	trans := &fakeTransport{}
	sleeper := &recordSleeper{}
	d := NewDispatcherWithSleeper(trans, 3, 500*time.Millisecond, sleeper)

	err := d.Send(context.Background(), EventGenerationJob, jobEvent{JobID: "job-1"}, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, trans.calls)
	assert.Empty(t, sleeper.delays, "без сбоев задержек быть не должно")
}

func TestDispatcher_Send_RetriesWithBackoff(t *testing.T) {
	trans := &fakeTransport{failFirst: 2}
	sleeper := &recordSleeper{}
	d := NewDispatcherWithSleeper(trans, 3, 500*time.Millisecond, sleeper)

	err := d.Send(context.Background(), EventGenerationJob, jobEvent{JobID: "job-1"}, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, trans.calls)
	// Экспоненциальный backoff: 500ms перед второй попыткой, 1s перед третьей
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.delays)
}

func TestDispatcher_Send_Exhausted(t *testing.T) {
	trans := &fakeTransport{failFirst: 100}
	sleeper := &recordSleeper{}
	d := NewDispatcherWithSleeper(trans, 3, 500*time.Millisecond, sleeper)

	err := d.Send(context.Background(), EventGenerationJob, jobEvent{JobID: "job-1"}, "job-1")
	require.ErrorIs(t, err, common.ErrDispatchFailed)
	assert.Equal(t, 3, trans.calls)
	assert.Len(t, sleeper.delays, 2, "после последней попытки задержки нет")
}

func TestDispatcher_Send_ContextCancelled(t *testing.T) {
	trans := &fakeTransport{failFirst: 100}
	d := NewDispatcher(trans, 3, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Send(ctx, EventGenerationJob, jobEvent{JobID: "job-1"}, "job-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, common.ErrDispatchFailed, "отмена контекста — не исчерпание попыток")
	assert.Equal(t, 1, trans.calls)
}
