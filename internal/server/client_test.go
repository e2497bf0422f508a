package server

import (
	"testing"

	"github.com/npezzotti/go-droproom/internal/database"
	"github.com/npezzotti/go-droproom/internal/stats"
	"github.com/npezzotti/go-droproom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewClient(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRoomRepository{}, &stats.MockStatsUpdater{})

	c := NewClient("alice", "testroom", nil, cs, testutil.TestLogger(t))
	assert.Equal(t, "alice", c.name, "expected name to be set")
	assert.Equal(t, "testroom", c.roomId, "expected room id to be set")
	assert.Equal(t, cs, c.chatServer, "expected chat server to be set")
	assert.NotNil(t, c.send, "expected send channel to be initialized")
	assert.NotNil(t, c.stop, "expected stop channel to be initialized")
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{} // Pre-fill the send channel to simulate a full channel
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: 1700000000000,
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":1700000000000,"response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()

	select {
	case <-c.stop:
		// Channel is closed as expected
	default:
		t.Error("expected stop channel to be closed")
	}

	// a second stop must be a no-op, not a panic
	c.stopClient()
}

func Test_attachRoom_detachRoom_getRoom(t *testing.T) {
	c := &Client{}

	r := &Room{id: "testroom"}
	c.attachRoom(r)
	assert.Equal(t, r, c.getRoom(), "expected room to be attached")

	c.detachRoom()
	assert.Nil(t, c.getRoom(), "expected room to be detached")
}

func Test_cleanup(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRoomRepository{}, &stats.MockStatsUpdater{})
	cs.deRegisterChan = make(chan *Client, 1)

	r := &Room{
		id:        "testroom",
		leaveChan: make(chan *Client, 1),
	}

	c := &Client{
		name:       "alice",
		roomId:     "testroom",
		chatServer: cs,
		send:       make(chan *ServerMessage, 1),
		stop:       make(chan struct{}),
		log:        testutil.TestLogger(t),
	}
	c.attachRoom(r)

	c.cleanup()

	select {
	case got := <-cs.deRegisterChan:
		assert.Equal(t, c, got, "expected client to deregister from the chat server")
	default:
		t.Error("expected client to deregister from the chat server")
	}

	select {
	case got := <-r.leaveChan:
		assert.Equal(t, c, got, "expected client to leave its room")
	default:
		t.Error("expected client to leave its room")
	}

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}
