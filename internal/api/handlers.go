package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-droproom/internal/database"
	policy "github.com/npezzotti/go-droproom/internal/room"
	"github.com/npezzotti/go-droproom/internal/server"
	"github.com/npezzotti/go-droproom/internal/stats"
	"github.com/npezzotti/go-droproom/internal/types"
)

// maxJoinRetries bounds the compare-and-swap loop when concurrent joins
// race on the member list.
const maxJoinRetries = 3

const maxUploadSize = 10 << 20 // 10 MiB

type CreateRoomRequest struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberLimit int    `json:"member_limit"`
	TimeLimit   int    `json:"time_limit"`
	Creator     string `json:"creator"`
}

type JoinRoomRequest struct {
	RoomId string `json:"room_id"`
	Name   string `json:"name"`
}

// RoomResponse pairs a room with the member token authorizing the caller to
// act in it.
type RoomResponse struct {
	Room  types.Room `json:"room"`
	Token string     `json:"token"`
}

// RoomView is the single-room read: the room plus its full message log.
// Files lists the file messages again so clients can render a shared-files
// panel without re-filtering.
type RoomView struct {
	Room     types.Room      `json:"room"`
	Messages []types.Message `json:"messages"`
	Files    []types.Message `json:"files"`
}

type PostMessageRequest struct {
	Id       string `json:"id"`
	RoomId   string `json:"room_id"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	FileUrl  string `json:"file_url"`
}

type UploadResponse struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	FileUrl  string `json:"file_url"`
}

func (s *DropRoomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *DropRoomApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadActiveRoom reads the room and enforces expiry on the read path: an
// expired room is deleted on sight and reported as not found.
func (s *DropRoomApp) loadActiveRoom(id string) (database.Room, *ApiError) {
	dbRoom, err := s.db.GetRoom(id)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return database.Room{}, NewNotFoundError()
		}
		return database.Room{}, NewInternalServerError(err)
	}

	if policy.IsExpired(dbRoom.Type(), time.Now()) {
		if err := s.db.DeleteRoom(dbRoom.Id); err != nil && !errors.Is(err, database.ErrRoomNotFound) {
			s.log.Println("delete expired room:", err)
		}
		s.stats.Incr(stats.RoomsExpired)
		s.cs.NotifyRoomDeleted(dbRoom.Id)
		return database.Room{}, NewNotFoundError()
	}

	return dbRoom, nil
}

func (s *DropRoomApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Creator == "" || req.MemberLimit < 1 || req.TimeLimit < 1 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id := req.Id
	if id == "" {
		var err error
		id, err = s.generateRoomId()
		if err != nil {
			s.log.Print("generateRoomId:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	createdAt := time.Now().UnixMilli()
	params := database.CreateRoomParams{
		Id:          id,
		Name:        req.Name,
		Description: req.Description,
		MemberLimit: req.MemberLimit,
		TimeLimit:   req.TimeLimit,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt + int64(req.TimeLimit)*time.Hour.Milliseconds(),
		Creator:     req.Creator,
	}

	newRoom, err := s.db.CreateRoom(params)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicateId) {
			errResp = NewConflictError("room id already exists")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createMemberToken(newRoom.Id, newRoom.Creator, newRoom.ExpiresAt)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createMemberCookie(token, newRoom.ExpiresAt))

	s.writeJson(w, http.StatusCreated, RoomResponse{
		Room:  newRoom.Type(),
		Token: token,
	})
}

func (s *DropRoomApp) getRoom(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.listRooms(w, r)
		return
	}

	dbRoom, apiErr := s.loadActiveRoom(id)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	dbMessages, err := s.db.GetMessages(dbRoom.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	view := RoomView{
		Room:     dbRoom.Type(),
		Messages: make([]types.Message, 0, len(dbMessages)),
		Files:    make([]types.Message, 0),
	}
	for _, m := range dbMessages {
		msg := m.Type()
		view.Messages = append(view.Messages, msg)
		if msg.Kind == types.KindFile {
			view.Files = append(view.Files, msg)
		}
	}

	s.writeJson(w, http.StatusOK, view)
}

// listRooms returns the active rooms, reaping expired ones as a side
// effect. This read is the garbage collector for rooms nobody touches
// again after they expire.
func (s *DropRoomApp) listRooms(w http.ResponseWriter, _ *http.Request) {
	dbRooms, reaped, err := s.db.ListActiveRooms(time.Now().UnixMilli())
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	for i := 0; i < reaped; i++ {
		s.stats.Incr(stats.RoomsReaped)
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, dbRoom := range dbRooms {
		rooms = append(rooms, dbRoom.Type())
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *DropRoomApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	for attempt := 0; attempt < maxJoinRetries; attempt++ {
		dbRoom, apiErr := s.loadActiveRoom(req.RoomId)
		if apiErr != nil {
			s.writeJson(w, apiErr.StatusCode, apiErr)
			return
		}

		admitted, err := policy.Admit(dbRoom.Type(), req.Name)
		if err != nil {
			errResp := NewConflictError(err.Error())
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		updated, err := s.db.UpdateRoomMembers(dbRoom.Id, admitted.Members, dbRoom.Version)
		if err != nil {
			if errors.Is(err, database.ErrVersionConflict) {
				// someone else joined between our read and write, re-read
				// and re-check admission against the fresh member list
				continue
			}
			var errResp *ApiError
			if errors.Is(err, database.ErrRoomNotFound) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		token, err := s.createMemberToken(updated.Id, req.Name, updated.ExpiresAt)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.cs.NotifyMemberJoined(updated.Id, req.Name, updated.Members)

		http.SetCookie(w, createMemberCookie(token, updated.ExpiresAt))
		s.writeJson(w, http.StatusOK, RoomResponse{
			Room:  updated.Type(),
			Token: token,
		})
		return
	}

	errResp := NewConflictError("conflicting joins in progress, retry")
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *DropRoomApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	m, ok := MembershipFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if m.RoomId != id {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRoom, apiErr := s.loadActiveRoom(id)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if !policy.CanDelete(dbRoom.Type(), m.Name) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteRoom(dbRoom.Id); err != nil {
		s.log.Println("delete room:", err)
		var errResp *ApiError
		if errors.Is(err, database.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyRoomDeleted(dbRoom.Id)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *DropRoomApp) postMessage(w http.ResponseWriter, r *http.Request) {
	m, ok := MembershipFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" {
		req.RoomId = m.RoomId
	}
	if req.RoomId != m.RoomId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Kind == "" {
		req.Kind = types.KindText
	}

	switch req.Kind {
	case types.KindText:
		if req.Content == "" {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	case types.KindFile:
		if req.FileUrl == "" || req.FileName == "" {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	default:
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRoom, apiErr := s.loadActiveRoom(req.RoomId)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	id := req.Id
	if id == "" {
		id = uuid.NewString()
	}

	msg := types.Message{
		Id:        id,
		RoomId:    dbRoom.Id,
		Kind:      req.Kind,
		Content:   req.Content,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		FileType:  req.FileType,
		FileUrl:   req.FileUrl,
		Sender:    m.Name,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := s.db.CreateMessage(database.NewMessage(msg)); err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrRoomNotFound):
			errResp = NewNotFoundError()
		case errors.Is(err, database.ErrDuplicateId):
			errResp = NewConflictError("message id already exists")
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.MessagesPublished)

	// best effort: connected clients get the message immediately, everyone
	// else picks it up on their next poll
	s.cs.NotifyMessage(dbRoom.Id, msg)

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *DropRoomApp) getMessages(w http.ResponseWriter, r *http.Request) {
	m, ok := MembershipFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		roomId = m.RoomId
	}
	if roomId != m.RoomId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRoom, apiErr := s.loadActiveRoom(roomId)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	dbMessages, err := s.db.GetMessages(dbRoom.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, dbMsg := range dbMessages {
		messages = append(messages, dbMsg.Type())
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *DropRoomApp) uploadFile(w http.ResponseWriter, r *http.Request) {
	m, ok := MembershipFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, apiErr := s.loadActiveRoom(m.RoomId); apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	contentType := fileContentType(header)
	objectName := m.RoomId + "/" + uuid.NewString() + filepath.Ext(header.Filename)

	url, err := s.blob.Upload(objectName, file, contentType)
	if err != nil {
		s.log.Println("upload:", err)
		errResp := NewUploadFailedError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.FilesUploaded)

	s.writeJson(w, http.StatusCreated, UploadResponse{
		FileName: header.Filename,
		FileSize: header.Size,
		FileType: contentType,
		FileUrl:  url,
	})
}

func fileContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *DropRoomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	m, ok := MembershipFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if roomId := r.URL.Query().Get("room_id"); roomId != "" && roomId != m.RoomId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(m.Name, m.RoomId, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
