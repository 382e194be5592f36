package support

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/notify"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

type fakeConversations struct {
	escalated   []uuid.UUID
	reactivated []uuid.UUID
}

func (f *fakeConversations) MarkEscalated(ctx context.Context, id uuid.UUID) error {
	f.escalated = append(f.escalated, id)
	return nil
}

func (f *fakeConversations) Reactivate(ctx context.Context, id uuid.UUID) error {
	f.reactivated = append(f.reactivated, id)
	return nil
}

type fakeAlerter struct {
	alerts []notify.EscalationAlert
	err    error
}

func (f *fakeAlerter) NotifyEscalation(ctx context.Context, alert notify.EscalationAlert) error {
	f.alerts = append(f.alerts, alert)
	return f.err
}

func TestCreateEscalationMarksConversationAndAlerts(t *testing.T) {
	store := NewMemoryStore()
	convs := &fakeConversations{}
	alerter := &fakeAlerter{err: errors.New("gateway down")}
	svc := NewEscalationService(store, convs, alerter, logging.New("error"))
	convID := uuid.New()

	e, err := svc.CreateEscalation(context.Background(), EscalationRequest{
		ConversationID: convID, Reason: "  angry about price  ", PatientAddress: "5511999990000",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "angry about price", e.ReasonOrEmpty())
	assert.Equal(t, []uuid.UUID{convID}, convs.escalated)
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, "5511999990000", alerter.alerts[0].PatientAddress)

	pending, err := svc.ListPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestResolveReactivatesConversation(t *testing.T) {
	store := NewMemoryStore()
	convs := &fakeConversations{}
	svc := NewEscalationService(store, convs, nil, logging.New("error"))
	convID := uuid.New()
	e, err := svc.CreateEscalation(context.Background(), EscalationRequest{ConversationID: convID})
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, []uuid.UUID{convID}, convs.reactivated)

	_, err = svc.Resolve(context.Background(), e.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResumeConversationResolvesAllPending(t *testing.T) {
	store := NewMemoryStore()
	convs := &fakeConversations{}
	svc := NewEscalationService(store, convs, nil, logging.New("error"))
	convID := uuid.New()
	for i := 0; i < 2; i++ {
		_, err := svc.CreateEscalation(context.Background(), EscalationRequest{ConversationID: convID})
		require.NoError(t, err)
	}
	_, err := svc.CreateEscalation(context.Background(), EscalationRequest{ConversationID: uuid.New()})
	require.NoError(t, err)

	n, err := svc.ResumeConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pending, err := svc.ListPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
