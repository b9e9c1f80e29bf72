package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisher_TaskAndGlobal(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	taskCh := p.Subscribe("t1")
	globalCh := p.Subscribe(GlobalTaskID)
	otherCh := p.Subscribe("t2")

	p.Publish(NewEvent(EventQueued, "t1", nil))

	require.Len(t, taskCh, 1)
	require.Len(t, globalCh, 1)
	assert.Empty(t, otherCh)
	assert.Equal(t, EventQueued, (<-taskCh).Type)
}

func TestMemoryPublisher_FullBufferDoesNotBlock(t *testing.T) {
	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	ch := p.Subscribe("t1")
	p.Publish(NewEvent(EventMessage, "t1", MessageData{Text: "a"}))
	p.Publish(NewEvent(EventMessage, "t1", MessageData{Text: "b"}))

	ev := <-ch
	assert.Equal(t, MessageData{Text: "a"}, ev.Data)
	assert.Empty(t, ch)
}

func TestMemoryPublisher_Unsubscribe(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	a := p.Subscribe("t1")
	b := p.Subscribe("t1")
	assert.Equal(t, 2, p.SubscriberCount("t1"))

	p.Unsubscribe("t1", a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, p.SubscriberCount("t1"))

	p.Unsubscribe("t1", b)
	assert.Equal(t, 0, p.SubscriberCount("t1"))

	// unknown channel is ignored
	p.Unsubscribe("t1", make(chan Event))
}

func TestMemoryPublisher_Close(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe("t1")
	p.Close()
	p.Close()

	_, open := <-ch
	assert.False(t, open)

	late := p.Subscribe("t1")
	_, open = <-late
	assert.False(t, open)

	p.Publish(NewEvent(EventSucceeded, "t1", nil))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish(NewEvent(EventQueued, "x", nil))
	_, open := <-p.Subscribe("x")
	assert.False(t, open)
}
