package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealflow/internal/platform/kafka/producer"
	"dealflow/internal/platform/logger"
	id "dealflow/pkg/domain"
	audit "dealflow/pkg/platform/audit"
	"dealflow/pkg/platform/audit/store/memory"
)

type fakePublisher struct {
	sent []producer.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msgs ...producer.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msgs...)
	return nil
}

func TestRelayOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	dealID := id.NewDealID()
	for _, action := range []audit.AuditEvent{audit.EventChainCreated, audit.EventActionExecuted, audit.EventEventProcessed} {
		require.NoError(t, store.Append(ctx, audit.Event{DealID: dealID, Action: string(action)}))
	}

	pub := &fakePublisher{}
	relay := NewRelay(store, pub, "dealflow.audit", 0, 2, logger.Discard())

	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, "dealflow.audit", pub.sent[0].Topic)
	assert.Equal(t, dealID.String(), string(pub.sent[0].Key))
	assert.Equal(t, string(audit.EventChainCreated), pub.sent[0].Headers["event_type"])

	decoded, err := audit.DecodePayload(pub.sent[1].Value)
	require.NoError(t, err)
	assert.Equal(t, string(audit.EventActionExecuted), decoded.Action)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayOnce_PublishFailureKeepsEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Append(ctx, audit.Event{Action: string(audit.EventChainCreated)}))

	relay := NewRelay(store, &fakePublisher{err: errors.New("broker down")}, "t", 0, 10, logger.Discard())
	_, err := relay.RelayOnce(ctx)
	require.Error(t, err)

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
