package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	roomColumns = "id, name, description, member_limit, time_limit, created_at, expires_at, creator, members, version"

	createRoomQuery = "INSERT INTO rooms (id, name, description, member_limit, time_limit, created_at, expires_at, creator, members, version) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1) RETURNING " + roomColumns

	getRoomQuery = "SELECT " + roomColumns + " FROM rooms WHERE id = $1 LIMIT 1"

	updateRoomMembersQuery = "UPDATE rooms SET members = $2, version = version + 1 " +
		"WHERE id = $1 AND version = $3 RETURNING " + roomColumns

	deleteExpiredRoomsQuery = "DELETE FROM rooms WHERE expires_at <= $1"

	listActiveRoomsQuery = "SELECT " + roomColumns + " FROM rooms " +
		"WHERE expires_at > $1 ORDER BY created_at DESC"

	createMessageQuery = "INSERT INTO messages (id, room_id, kind, content, file_name, file_size, file_type, file_url, sender, timestamp) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"

	getMessagesQuery = "SELECT id, seq, room_id, kind, content, file_name, file_size, file_type, file_url, sender, timestamp " +
		"FROM messages WHERE room_id = $1 ORDER BY timestamp ASC, seq ASC"
)

func scanRoom(row interface{ Scan(...any) error }) (Room, error) {
	var (
		room       Room
		membersRaw []byte
	)

	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
		&room.MemberLimit,
		&room.TimeLimit,
		&room.CreatedAt,
		&room.ExpiresAt,
		&room.Creator,
		&membersRaw,
		&room.Version,
	)
	if err != nil {
		return Room{}, err
	}

	if err := json.Unmarshal(membersRaw, &room.Members); err != nil {
		return Room{}, fmt.Errorf("unmarshal members: %w", err)
	}

	return room, nil
}

func isPqError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func (db *PgRoomRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	members, err := json.Marshal([]string{params.Creator})
	if err != nil {
		return Room{}, fmt.Errorf("marshal members: %w", err)
	}

	res := db.conn.QueryRow(
		createRoomQuery,
		params.Id,
		params.Name,
		params.Description,
		params.MemberLimit,
		params.TimeLimit,
		params.CreatedAt,
		params.ExpiresAt,
		params.Creator,
		members,
	)

	room, err := scanRoom(res)
	if err != nil {
		if isPqError(err, pqUniqueViolation) {
			return Room{}, ErrDuplicateId
		}
		return Room{}, err
	}

	return room, nil
}

func (db *PgRoomRepository) GetRoom(id string) (Room, error) {
	room, err := scanRoom(db.conn.QueryRow(getRoomQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, err
	}

	return room, nil
}

// UpdateRoomMembers replaces the member list if and only if the room is
// still at the given version. A stale version yields ErrVersionConflict so
// two racing joins cannot overwrite each other.
func (db *PgRoomRepository) UpdateRoomMembers(id string, members []string, version int) (Room, error) {
	membersRaw, err := json.Marshal(members)
	if err != nil {
		return Room{}, fmt.Errorf("marshal members: %w", err)
	}

	room, err := scanRoom(db.conn.QueryRow(updateRoomMembersQuery, id, membersRaw, version))
	if err == nil {
		return room, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return Room{}, err
	}

	// No row matched: either the room is gone or the version was stale.
	if _, getErr := db.GetRoom(id); getErr != nil {
		return Room{}, getErr
	}

	return Room{}, ErrVersionConflict
}

func (db *PgRoomRepository) DeleteRoom(id string) error {
	res, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}

	// Messages are removed by the ON DELETE CASCADE constraint.
	return nil
}

// ListActiveRooms reaps every room whose expiry has passed and returns the
// remainder, newest first. There is no background sweeper; this read-path
// side effect is the garbage collector.
func (db *PgRoomRepository) ListActiveRooms(now int64) ([]Room, int, error) {
	res, err := db.conn.Exec(deleteExpiredRoomsQuery, now)
	if err != nil {
		return nil, 0, fmt.Errorf("reap expired rooms: %w", err)
	}

	reaped, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.Query(listActiveRoomsQuery, now)
	if err != nil {
		return nil, int(reaped), err
	}
	defer rows.Close()

	var rooms = make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, int(reaped), err
		}
		rooms = append(rooms, room)
	}

	return rooms, int(reaped), rows.Err()
}

func (db *PgRoomRepository) CreateMessage(msg Message) error {
	_, err := db.conn.Exec(
		createMessageQuery,
		msg.Id,
		msg.RoomId,
		msg.Kind,
		msg.Content,
		nullString(msg.FileName),
		nullInt64(msg.FileSize),
		nullString(msg.FileType),
		nullString(msg.FileUrl),
		msg.Sender,
		msg.Timestamp,
	)
	if err != nil {
		if isPqError(err, pqForeignKeyViolation) {
			return ErrRoomNotFound
		}
		if isPqError(err, pqUniqueViolation) {
			return ErrDuplicateId
		}
		return err
	}

	return nil
}

func (db *PgRoomRepository) GetMessages(roomId string) ([]Message, error) {
	rows, err := db.conn.Query(getMessagesQuery, roomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0)
	for rows.Next() {
		var (
			msg      Message
			fileName sql.NullString
			fileSize sql.NullInt64
			fileType sql.NullString
			fileUrl  sql.NullString
		)

		err := rows.Scan(
			&msg.Id,
			&msg.Seq,
			&msg.RoomId,
			&msg.Kind,
			&msg.Content,
			&fileName,
			&fileSize,
			&fileType,
			&fileUrl,
			&msg.Sender,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, err
		}

		msg.FileName = fileName.String
		msg.FileSize = fileSize.Int64
		msg.FileType = fileType.String
		msg.FileUrl = fileUrl.String

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
