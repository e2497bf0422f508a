package database

type RoomRepository interface {
	Ping() error
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(id string) (Room, error)
	UpdateRoomMembers(id string, members []string, version int) (Room, error)
	DeleteRoom(id string) error
	ListActiveRooms(now int64) ([]Room, int, error)
	CreateMessage(msg Message) error
	GetMessages(roomId string) ([]Message, error)
}
