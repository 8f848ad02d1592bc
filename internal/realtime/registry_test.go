package realtime

import (
	"encoding/json"
	"testing"

	"github.com/nkkko/verse/pkg/proto"
	"github.com/stretchr/testify/assert"
)

func TestRegistryDispatchOrder(t *testing.T) {
	r := NewRegistry()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		r.On(proto.TopicFriendRemoved, func(json.RawMessage) { order = append(order, i) })
	}

	n := r.Dispatch(proto.TopicFriendRemoved, json.RawMessage(`{}`))
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestRegistryPassesPayload(t *testing.T) {
	r := NewRegistry()

	var got json.RawMessage
	r.On(proto.TopicFriendRequestUpdate, func(p json.RawMessage) { got = p })
	r.Dispatch(proto.TopicFriendRequestUpdate, json.RawMessage(`{"status":"rejected"}`))

	assert.JSONEq(t, `{"status":"rejected"}`, string(got))
}

func TestRegistryUnknownTopic(t *testing.T) {
	r := NewRegistry()
	r.On(proto.TopicFriendRemoved, func(json.RawMessage) { t.Fatal("wrong topic") })

	assert.Equal(t, 0, r.Dispatch("weather", nil))
}

func TestRegistryOffIsIdempotent(t *testing.T) {
	r := NewRegistry()

	calls := 0
	h := r.On(proto.TopicFriendRemoved, func(json.RawMessage) { calls++ })
	r.On(proto.TopicFriendRemoved, func(json.RawMessage) { calls += 10 })

	assert.True(t, r.Off(proto.TopicFriendRemoved, h))
	assert.False(t, r.Off(proto.TopicFriendRemoved, h))
	assert.False(t, r.Off(proto.TopicFriendRequestAccepted, h))
	assert.Equal(t, 1, r.Count(proto.TopicFriendRemoved))

	r.Dispatch(proto.TopicFriendRemoved, nil)
	assert.Equal(t, 10, calls)
}

func TestRegistryOffDuringDispatch(t *testing.T) {
	r := NewRegistry()

	var second Handle
	calls := 0
	r.On(proto.TopicFriendRemoved, func(json.RawMessage) {
		calls++
		r.Off(proto.TopicFriendRemoved, second)
	})
	second = r.On(proto.TopicFriendRemoved, func(json.RawMessage) { calls++ })

	// The snapshot taken at dispatch time still includes the second callback
	assert.Equal(t, 2, r.Dispatch(proto.TopicFriendRemoved, nil))
	assert.Equal(t, 2, calls)

	assert.Equal(t, 1, r.Dispatch(proto.TopicFriendRemoved, nil))
	assert.Equal(t, 3, calls)
}

func TestRegistryPanicIsolation(t *testing.T) {
	r := NewRegistry()

	var ran []string
	r.On(proto.TopicFriendRequestAccepted, func(json.RawMessage) { ran = append(ran, "first") })
	r.On(proto.TopicFriendRequestAccepted, func(json.RawMessage) { panic("bad callback") })
	r.On(proto.TopicFriendRequestAccepted, func(json.RawMessage) { ran = append(ran, "third") })

	assert.NotPanics(t, func() {
		r.Dispatch(proto.TopicFriendRequestAccepted, nil)
	})
	assert.Equal(t, []string{"first", "third"}, ran)
}
