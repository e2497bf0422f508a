package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-droproom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRoomViewReplace(t *testing.T) {
	v := NewRoomView(Room{Id: "r1", Members: []string{"alice"}})

	// a pushed message merged before the poll
	v.ApplyMessage(Message{Id: "m-push", Timestamp: 100})

	v.Replace(
		Room{Id: "r1", Members: []string{"alice", "bob"}},
		[]Message{{Id: "m1", Timestamp: 50}},
	)

	room, messages := v.Snapshot()
	assert.Equal(t, []string{"alice", "bob"}, room.Members, "expected polled roster to win")
	assert.Len(t, messages, 1, "expected poll to replace the log wholesale")
	assert.Equal(t, "m1", messages[0].Id)
}

func TestRoomViewApplyMessage(t *testing.T) {
	v := NewRoomView(Room{Id: "r1"})

	v.ApplyMessage(Message{Id: "m1", Timestamp: 100})
	v.ApplyMessage(Message{Id: "m3", Timestamp: 300})
	v.ApplyMessage(Message{Id: "m2", Timestamp: 200})

	_, messages := v.Snapshot()
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.Id)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids, "expected messages ordered by timestamp")

	// same id again is a no-op
	v.ApplyMessage(Message{Id: "m2", Timestamp: 200})
	_, messages = v.Snapshot()
	assert.Len(t, messages, 3, "expected duplicate message to be dropped")
}

func TestRoomViewApplyMember(t *testing.T) {
	v := NewRoomView(Room{Id: "r1", Members: []string{"alice"}})

	v.ApplyMember("bob")
	v.ApplyMember("bob")
	// names are case-sensitive, so this is a distinct member
	v.ApplyMember("Bob")

	room, _ := v.Snapshot()
	assert.Equal(t, []string{"alice", "bob", "Bob"}, room.Members)
}

func TestRoomViewSnapshotIsolation(t *testing.T) {
	v := NewRoomView(Room{Id: "r1", Members: []string{"alice"}})
	v.ApplyMessage(Message{Id: "m1", Timestamp: 1})

	room, messages := v.Snapshot()
	room.Members[0] = "mallory"
	messages[0].Content = "tampered"

	gotRoom, gotMessages := v.Snapshot()
	assert.Equal(t, "alice", gotRoom.Members[0], "expected snapshot to be a copy")
	assert.Empty(t, gotMessages[0].Content, "expected snapshot to be a copy")
}

func TestCoordinatorSend(t *testing.T) {
	t.Run("applies optimistically", func(t *testing.T) {
		v := NewRoomView(Room{Id: "r1"})

		var posted Message
		post := func(ctx context.Context, roomId string, msg Message) error {
			posted = msg
			return nil
		}

		c := NewCoordinator(testutil.TestLogger(t), "r1", v, nil, post, time.Minute)

		err := c.Send(context.Background(), Message{Id: "m1", Content: "hi", Timestamp: 1})
		assert.NoError(t, err)
		assert.Equal(t, "m1", posted.Id, "expected message to be posted")

		_, messages := v.Snapshot()
		assert.Len(t, messages, 1, "expected message to remain in the view")
	})

	t.Run("rolls back on post failure", func(t *testing.T) {
		v := NewRoomView(Room{Id: "r1"})

		postErr := errors.New("post failed")
		post := func(ctx context.Context, roomId string, msg Message) error {
			return postErr
		}

		c := NewCoordinator(testutil.TestLogger(t), "r1", v, nil, post, time.Minute)

		err := c.Send(context.Background(), Message{Id: "m1", Content: "hi", Timestamp: 1})
		assert.ErrorIs(t, err, postErr, "expected post error to be returned")

		_, messages := v.Snapshot()
		assert.Empty(t, messages, "expected optimistic apply to be rolled back")
	})
}

func TestCoordinatorPoll(t *testing.T) {
	t.Run("replaces view on tick", func(t *testing.T) {
		v := NewRoomView(Room{Id: "r1"})

		var mu sync.Mutex
		fetched := 0
		fetch := func(ctx context.Context, roomId string) (Room, []Message, error) {
			mu.Lock()
			defer mu.Unlock()
			fetched++
			return Room{Id: roomId, Members: []string{"alice"}},
				[]Message{{Id: "m1", Timestamp: 1}}, nil
		}

		c := NewCoordinator(testutil.TestLogger(t), "r1", v, fetch, nil, 10*time.Millisecond)
		c.Run()
		defer c.Close()

		assert.Eventually(t, func() bool {
			_, messages := v.Snapshot()
			return len(messages) == 1
		}, time.Second, 5*time.Millisecond, "expected the poll to populate the view")
	})

	t.Run("marks view deleted when the room is gone", func(t *testing.T) {
		v := NewRoomView(Room{Id: "r1"})

		fetch := func(ctx context.Context, roomId string) (Room, []Message, error) {
			return Room{}, nil, ErrRoomGone
		}

		c := NewCoordinator(testutil.TestLogger(t), "r1", v, fetch, nil, 10*time.Millisecond)
		c.Run()
		defer c.Close()

		assert.Eventually(t, v.Deleted, time.Second, 5*time.Millisecond,
			"expected the view to be marked deleted")
	})
}

func TestCoordinatorDeliver(t *testing.T) {
	v := NewRoomView(Room{Id: "r1", Members: []string{"alice"}})

	fetch := func(ctx context.Context, roomId string) (Room, []Message, error) {
		return Room{Id: roomId, Members: []string{"alice"}}, nil, nil
	}

	c := NewCoordinator(testutil.TestLogger(t), "r1", v, fetch, nil, time.Hour)
	c.Run()
	defer c.Close()

	c.Deliver(Event{Message: &Message{Id: "m1", Timestamp: 1}})
	c.Deliver(Event{Members: []string{"alice", "bob"}})

	assert.Eventually(t, func() bool {
		room, messages := v.Snapshot()
		return len(messages) == 1 && len(room.Members) == 2
	}, time.Second, 5*time.Millisecond, "expected pushed events to be merged")

	c.Deliver(Event{RoomDeleted: true})
	assert.Eventually(t, v.Deleted, time.Second, 5*time.Millisecond,
		"expected a room deleted event to mark the view")
}

func TestCoordinatorClose(t *testing.T) {
	v := NewRoomView(Room{Id: "r1"})

	fetch := func(ctx context.Context, roomId string) (Room, []Message, error) {
		return Room{Id: roomId}, nil, nil
	}

	c := NewCoordinator(testutil.TestLogger(t), "r1", v, fetch, nil, 10*time.Millisecond)
	c.Run()

	c.Close()
	// a second close must not panic or hang
	c.Close()
}
