package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/carrental/internal/domain"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, event domain.RentalEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ReconcileAvailability(ctx context.Context, event domain.RentalEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockRepublisher struct {
	mock.Mock
}

func (m *MockRepublisher) PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error {
	return m.Called(ctx, topic, key, payload, maxRetries).Error(0)
}

type handlerFixture struct {
	notifier    *MockNotifier
	reconciler  *MockReconciler
	republisher *MockRepublisher
	handler     *EventHandler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{notifier: &MockNotifier{}, reconciler: &MockReconciler{}, republisher: &MockRepublisher{}}
	f.handler = NewEventHandler(f.notifier, f.reconciler, f.republisher, "rental-events")
	f.handler.backoff = func(int) time.Duration { return 0 }
	return f
}

func encode(t *testing.T, event domain.RentalEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

var syncFailed = domain.RentalEvent{Type: domain.EventAvailabilitySyncFailed, RentalID: 11, VehicleID: 1}

func TestHandleNotification(t *testing.T) {
	f := newHandlerFixture()
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(e domain.RentalEvent) bool {
		return e.Type == domain.EventRentalConfirmed && e.RentalID == 11
	})).Return(true, nil).Once()

	err := f.handler.HandleNotification(context.Background(), encode(t, domain.RentalEvent{Type: domain.EventRentalConfirmed, RentalID: 11}))

	require.NoError(t, err)
	f.notifier.AssertExpectations(t)
	f.reconciler.AssertNotCalled(t, "ReconcileAvailability", mock.Anything, mock.Anything)
}

func TestHandleNotification_FailureIsSwallowed(t *testing.T) {
	f := newHandlerFixture()
	f.notifier.On("Send", mock.Anything, mock.Anything).Return(false, errors.New("smtp down")).Once()

	assert.NoError(t, f.handler.HandleNotification(context.Background(), encode(t, domain.RentalEvent{Type: domain.EventRentalCancelled})))
}

func TestHandleEvent_OnlyReconciles(t *testing.T) {
	f := newHandlerFixture()
	f.reconciler.On("ReconcileAvailability", mock.Anything, mock.MatchedBy(func(e domain.RentalEvent) bool {
		return e.VehicleID == 1
	})).Return(nil).Once()

	require.NoError(t, f.handler.HandleEvent(context.Background(), encode(t, syncFailed)))
	require.NoError(t, f.handler.HandleEvent(context.Background(), encode(t, domain.RentalEvent{Type: domain.EventRentalConfirmed})))

	f.reconciler.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.republisher.AssertNotCalled(t, "PublishWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_RequeuesFailedReconciliation(t *testing.T) {
	f := newHandlerFixture()
	f.reconciler.On("ReconcileAvailability", mock.Anything, mock.Anything).Return(domain.ErrRemote).Once()
	f.republisher.On("PublishWithRetry", mock.Anything, "rental-events", "11", mock.MatchedBy(func(p any) bool {
		e, ok := p.(domain.RentalEvent)
		return ok && e.Type == domain.EventAvailabilitySyncFailed && e.Attempt == 1
	}), republishRetries).Return(nil).Once()

	err := f.handler.HandleEvent(context.Background(), encode(t, syncFailed))

	require.NoError(t, err)
	f.republisher.AssertExpectations(t)
}

func TestHandleEvent_RequeueFailureIsReturned(t *testing.T) {
	f := newHandlerFixture()
	f.reconciler.On("ReconcileAvailability", mock.Anything, mock.Anything).Return(domain.ErrRemote).Once()
	f.republisher.On("PublishWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down")).Once()

	err := f.handler.HandleEvent(context.Background(), encode(t, syncFailed))

	assert.ErrorIs(t, err, domain.ErrRemote)
}

func TestHandleEvent_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newHandlerFixture()
	event := syncFailed
	event.Attempt = maxReconcileAttempts - 1
	f.reconciler.On("ReconcileAvailability", mock.Anything, mock.Anything).Return(domain.ErrRemote).Once()

	err := f.handler.HandleEvent(context.Background(), encode(t, event))

	assert.ErrorIs(t, err, domain.ErrRemote)
	f.republisher.AssertNotCalled(t, "PublishWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlers_DropGarbage(t *testing.T) {
	f := newHandlerFixture()

	assert.NoError(t, f.handler.HandleEvent(context.Background(), []byte("{not json")))
	assert.NoError(t, f.handler.HandleNotification(context.Background(), []byte("{not json")))
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.reconciler.AssertNotCalled(t, "ReconcileAvailability", mock.Anything, mock.Anything)
}

func TestReconcileBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, reconcileBackoff(1))
	assert.Equal(t, time.Minute, reconcileBackoff(30))
}
