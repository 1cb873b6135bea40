package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Dispatch_CallsRegisteredHandlerFunction(t *testing.T) {
	bus := event.New()
	payload := uuid.New()

	var received event.Payload
	bus.RegisterHandlerFunction(event.MediaArchivedEvent, func(ev event.Event, p event.Payload) {
		received = p
	})

	bus.Dispatch(event.MediaArchivedEvent, payload)
	assert.Equal(t, payload, received)
}

func Test_Dispatch_CallsAsyncHandlerFunction(t *testing.T) {
	bus := event.New()
	payload := uuid.New()

	wg := sync.WaitGroup{}
	wg.Add(1)
	var received event.Payload
	bus.RegisterAsyncHandlerFunction(event.ArchiveCompleteEvent, func(ev event.Event, p event.Payload) {
		received = p
		wg.Done()
	})

	bus.Dispatch(event.ArchiveCompleteEvent, payload)
	wg.Wait()
	assert.Equal(t, payload, received)
}

func Test_Dispatch_SendsToRegisteredChannels(t *testing.T) {
	bus := event.New()
	payload := uuid.New()

	handlerChannel := make(event.HandlerChannel, 2)
	bus.RegisterHandlerChannel(handlerChannel, event.DeviceAttachedEvent, event.DeviceDetachedEvent)

	bus.Dispatch(event.DeviceAttachedEvent, payload)
	bus.Dispatch(event.DeviceDetachedEvent, payload)

	first := <-handlerChannel
	require.Equal(t, event.DeviceAttachedEvent, first.Event)
	assert.Equal(t, payload, first.Payload)

	second := <-handlerChannel
	assert.Equal(t, event.DeviceDetachedEvent, second.Event)
}

func Test_Dispatch_RejectsIllegalPayload(t *testing.T) {
	bus := event.New()

	handlerChannel := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(handlerChannel, event.ScreencapCompleteEvent)

	bus.Dispatch(event.ScreencapCompleteEvent, "not-a-uuid")

	select {
	case ev := <-handlerChannel:
		t.Fatalf("expected no delivery for an illegal payload, received %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
