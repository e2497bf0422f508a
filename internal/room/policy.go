// Package room holds the admission and lifecycle rules shared by the HTTP
// handlers and the chat server.
package room

import (
	"errors"
	"slices"
	"time"

	"github.com/npezzotti/go-droproom/internal/types"
)

var (
	ErrRoomFull  = errors.New("room is full")
	ErrNameTaken = errors.New("display name already taken")
)

// IsExpired reports whether the room's lifetime has elapsed. A room is
// expired the instant now reaches ExpiresAt, not after it.
func IsExpired(r types.Room, now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// Admit returns a copy of the room with name appended to its members.
// Capacity is checked before name uniqueness, so a full room reports
// ErrRoomFull even when the name is also taken. Names are case-sensitive.
func Admit(r types.Room, name string) (types.Room, error) {
	if len(r.Members) >= r.MemberLimit {
		return types.Room{}, ErrRoomFull
	}

	if slices.Contains(r.Members, name) {
		return types.Room{}, ErrNameTaken
	}

	r.Members = append(slices.Clone(r.Members), name)
	return r, nil
}

// CanDelete reports whether requester may delete the room. Only the
// creator can delete a room before it expires.
func CanDelete(r types.Room, requester string) bool {
	return requester == r.Creator
}
