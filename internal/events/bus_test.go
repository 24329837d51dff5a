package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(8, 10, nil)
	require.NoError(t, bus.Start())
	defer func() { _ = bus.Stop() }()

	metricSub, err := bus.Subscribe("dashboard", TopicMetricRecorded)
	require.NoError(t, err)
	allSub, err := bus.Subscribe("audit")
	require.NoError(t, err)

	bus.Publish(TopicMetricRecorded, map[string]any{"metric_id": "invoices_transmitted"})
	bus.Publish(TopicSyncConflict, map[string]any{"entity_id": "inv-1"})

	select {
	case event := <-metricSub.Channel:
		assert.Equal(t, TopicMetricRecorded, event.Topic)
		assert.Equal(t, "invoices_transmitted", event.Payload["metric_id"])
	case <-time.After(time.Second):
		t.Fatal("metric subscriber did not receive event")
	}

	// The filterless subscriber sees both.
	received := 0
	for received < 2 {
		select {
		case <-allSub.Channel:
			received++
		case <-time.After(time.Second):
			t.Fatalf("audit subscriber received %d of 2 events", received)
		}
	}

	// The filtered subscriber must not see the sync event.
	select {
	case event := <-metricSub.Channel:
		t.Fatalf("unexpected event on metric subscription: %s", event.Topic)
	default:
	}
}

func TestBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(1, 10, nil)
	require.NoError(t, bus.Start())
	defer func() { _ = bus.Stop() }()

	_, err := bus.Subscribe("slow", TopicKPICalculated)
	require.NoError(t, err)

	bus.Publish(TopicKPICalculated, nil)
	bus.Publish(TopicKPICalculated, nil)

	metrics := bus.Metrics()
	assert.Equal(t, int64(2), metrics.Published)
	assert.Equal(t, int64(1), metrics.Delivered)
	assert.Equal(t, int64(1), metrics.Dropped)
}

func TestBus_SubscribeRequiresRunning(t *testing.T) {
	bus := NewBus(8, 10, nil)
	_, err := bus.Subscribe("early")
	assert.Error(t, err)

	require.NoError(t, bus.Start())
	sub, err := bus.Subscribe("late")
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(sub.ID))
	assert.Error(t, bus.Unsubscribe(sub.ID))
	require.NoError(t, bus.Stop())
	assert.Error(t, bus.Stop())
}

func TestBus_MaxSubscribers(t *testing.T) {
	bus := NewBus(1, 1, nil)
	require.NoError(t, bus.Start())
	defer func() { _ = bus.Stop() }()

	_, err := bus.Subscribe("first")
	require.NoError(t, err)
	_, err = bus.Subscribe("second")
	assert.Error(t, err)
}
