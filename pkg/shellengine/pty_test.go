package shellengine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/events"
)

func TestPtyCoalescer_FlushesImmediatelyPastBufferCap(t *testing.T) {
	bus := &collectingPublisher{}
	c := newPtyCoalescer("sess-pty-1", bus)

	big := make([]byte, ptyMaxCoalesceBuffer+1)
	for i := range big {
		big[i] = 'x'
	}
	c.write(context.Background(), big)

	require.Len(t, bus.events, 1)
	assert.Equal(t, events.EventTerminalData, bus.events[0].Type)
}

func TestPtyCoalescer_SmallWriteIsDeferredThenFlushed(t *testing.T) {
	bus := &collectingPublisher{}
	c := newPtyCoalescer("sess-pty-2", bus)

	c.write(context.Background(), []byte("hello"))
	assert.Empty(t, bus.events, "a small write should be deferred rather than flushed immediately")

	time.Sleep(ptyCoalesceInterval * 3)
	c.mu.Lock()
	flushed := len(bus.events)
	c.mu.Unlock()
	require.Equal(t, 1, flushed)

	var payload struct {
		Data string `json:"data"`
	}
	require.NoError(t, decodeEventPayload(bus.events[0], &payload))
	decoded, err := base64.StdEncoding.DecodeString(payload.Data)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(decoded))
}

func TestPtyCoalescer_CloseFlushesPendingBuffer(t *testing.T) {
	bus := &collectingPublisher{}
	c := newPtyCoalescer("sess-pty-3", bus)

	c.write(context.Background(), []byte("partial"))
	c.close(context.Background())

	require.Len(t, bus.events, 1)
}

func TestPtyCoalescer_NoOpAfterClose(t *testing.T) {
	bus := &collectingPublisher{}
	c := newPtyCoalescer("sess-pty-4", bus)
	c.close(context.Background())

	c.write(context.Background(), []byte("too late"))
	assert.Empty(t, bus.events)
}

func TestConnection_OpenPTY_RejectsWhenNotConnected(t *testing.T) {
	conn := NewConnection("sess-pty-5", "asset-1", "127.0.0.1", 22, noopSessionTransitioner{}, nil)
	err := conn.OpenPTY(context.Background(), 80, 24)
	assert.Error(t, err)
}

func TestConnection_WritePTY_ErrorsWithoutOpenSession(t *testing.T) {
	conn := NewConnection("sess-pty-6", "asset-1", "127.0.0.1", 22, noopSessionTransitioner{}, nil)
	err := conn.WritePTY([]byte("ls\n"))
	assert.Error(t, err)
}

func TestConnection_ClosePTY_NoOpWhenNonePresent(t *testing.T) {
	conn := NewConnection("sess-pty-7", "asset-1", "127.0.0.1", 22, noopSessionTransitioner{}, nil)
	assert.NoError(t, conn.ClosePTY(context.Background(), "analyst request"))
}

func decodeEventPayload(ev events.Event, v any) error {
	return json.Unmarshal(ev.Payload, v)
}
