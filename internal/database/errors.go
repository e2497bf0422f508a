package database

import "errors"

var (
	// ErrRoomNotFound is returned when a room does not exist. Callers must
	// still apply the expiry policy on top of a successful read: an expired
	// room is observably identical to an absent one.
	ErrRoomNotFound = errors.New("room not found")

	// ErrDuplicateId is returned when a room id already exists. Ids are
	// client-generated random tokens; collisions surface through the
	// primary-key constraint rather than any pre-check.
	ErrDuplicateId = errors.New("room id already exists")

	// ErrVersionConflict is returned by UpdateRoomMembers when the supplied
	// version is stale. The caller re-reads and retries.
	ErrVersionConflict = errors.New("room was modified concurrently")
)
