package database

import "github.com/npezzotti/go-droproom/internal/types"

type Room struct {
	Id          string
	Name        string
	Description string
	MemberLimit int
	TimeLimit   int
	CreatedAt   int64
	ExpiresAt   int64
	Creator     string
	Members     []string
	// Version is bumped on every member-list update and compared-and-swapped
	// by UpdateRoomMembers so concurrent joins cannot silently lose a member.
	Version int
}

type Message struct {
	Id        string
	Seq       int64
	RoomId    string
	Kind      string
	Content   string
	FileName  string
	FileSize  int64
	FileType  string
	FileUrl   string
	Sender    string
	Timestamp int64
}

// Type converts the stored row to its wire representation.
func (r Room) Type() types.Room {
	return types.Room{
		Id:          r.Id,
		Name:        r.Name,
		Description: r.Description,
		MemberLimit: r.MemberLimit,
		TimeLimit:   r.TimeLimit,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		Creator:     r.Creator,
		Members:     r.Members,
	}
}

func (m Message) Type() types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Kind:      m.Kind,
		Content:   m.Content,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		FileType:  m.FileType,
		FileUrl:   m.FileUrl,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
	}
}

// NewMessage builds a row from the wire representation. Seq is assigned by
// the database on insert.
func NewMessage(m types.Message) Message {
	return Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Kind:      m.Kind,
		Content:   m.Content,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		FileType:  m.FileType,
		FileUrl:   m.FileUrl,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
	}
}

type CreateRoomParams struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberLimit int    `json:"member_limit"`
	TimeLimit   int    `json:"time_limit"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at"`
	Creator     string `json:"creator"`
}
