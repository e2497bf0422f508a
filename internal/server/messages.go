package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-droproom/internal/types"
)

type BaseMessage struct {
	Id        int   `json:"id,omitempty"`
	Timestamp int64 `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	client  *Client  `json:"-"`
}

type Publish struct {
	RoomId string `json:"room_id"`
	// MessageId is the client-generated message id. The server assigns one
	// when it is empty.
	MessageId string `json:"message_id,omitempty"`
	Content   string `json:"content"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	MemberJoined *MemberJoined `json:"member_joined,omitempty"`
	Presence     *Presence     `json:"presence,omitempty"`
	RoomDeleted  *RoomDeleted  `json:"room_deleted,omitempty"`
}

// MemberJoined announces a new member admitted over the REST API. Members is
// the full roster after the join so receivers can replace, not merge.
type MemberJoined struct {
	RoomId  string   `json:"room_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Presence reports whether a member currently has a live connection.
type Presence struct {
	RoomId  string `json:"room_id"`
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

// Now returns the current time in epoch milliseconds, the unit used for all
// room and message timestamps.
func Now() int64 {
	return time.Now().UnixMilli()
}
