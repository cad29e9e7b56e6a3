package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/carrental/internal/domain"
)

type fakeExpirer struct {
	calls int
	err   error
	crash bool
}

func (f *fakeExpirer) ExpireStalePending(ctx context.Context) ([]domain.Rental, error) {
	f.calls++
	if f.crash {
		panic("boom")
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("missing deadline")
	}
	return []domain.Rental{{ID: 1}}, f.err
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler(&fakeExpirer{}, "every five minutes")
	assert.Error(t, err)
}

func TestNewScheduler_RegistersJob(t *testing.T) {
	s, err := NewScheduler(&fakeExpirer{}, "0 */5 * * * *")

	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
	s.Start()
	s.Stop()
}

func TestScheduler_ExpirePending(t *testing.T) {
	expirer := &fakeExpirer{}
	s, err := NewScheduler(expirer, "@every 1h")
	require.NoError(t, err)

	s.ExpirePending()
	expirer.err = errors.New("db down")
	s.ExpirePending()

	assert.Equal(t, 2, expirer.calls)
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	expirer := &fakeExpirer{crash: true}
	s, err := NewScheduler(expirer, "@every 1h")
	require.NoError(t, err)

	assert.NotPanics(t, s.runWithRecovery("expire_pending", s.ExpirePending))
	assert.Equal(t, 1, expirer.calls)
}
