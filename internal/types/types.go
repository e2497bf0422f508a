package types

const (
	KindText = "text"
	KindFile = "file"
)

// Room is the wire representation of a room. CreatedAt and ExpiresAt are
// epoch milliseconds; ExpiresAt is immutable once set. Members is an ordered
// roster of display names, creator first.
type Room struct {
	Id          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MemberLimit int      `json:"member_limit"`
	TimeLimit   int      `json:"time_limit"`
	CreatedAt   int64    `json:"created_at"`
	ExpiresAt   int64    `json:"expires_at"`
	Creator     string   `json:"creator"`
	Members     []string `json:"members"`
}

// Message is immutable once created. Timestamp is epoch milliseconds and is
// the ordering key for the room's log. The File* fields are set only for
// kind "file"; Content then carries a human-readable caption.
type Message struct {
	Id        string `json:"id"`
	RoomId    string `json:"room_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	FileType  string `json:"file_type,omitempty"`
	FileUrl   string `json:"file_url,omitempty"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}
