package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-droproom/internal/database"
	policy "github.com/npezzotti/go-droproom/internal/room"
	"github.com/npezzotti/go-droproom/internal/stats"
	"github.com/npezzotti/go-droproom/internal/types"
)

type unloadRoomRequest struct {
	roomId  string
	deleted bool
}

type roomNotification struct {
	roomId  string
	deleted bool
	msg     *ServerMessage
}

type stopRequest struct {
	done chan struct{}
}

type ChatServer struct {
	log            *log.Logger
	db             database.RoomRepository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	notifyChan     chan *roomNotification
	rooms          map[string]*Room
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.RoomRepository, sp stats.StatsProvider) (*ChatServer, error) {
	for _, m := range stats.DefaultMetrics {
		sp.RegisterMetric(m)
	}

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		// buffered so a room can request its own unload without blocking
		// against the run loop
		unloadRoomChan: make(chan unloadRoomRequest, 16),
		notifyChan:     make(chan *roomNotification, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopRequest),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection from %q", client.name)
			cs.addClient(client)
			cs.handleJoin(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.name)
			cs.removeClient(client)
		case req := <-cs.unloadRoomChan:
			cs.handleUnload(req)
		case n := <-cs.notifyChan:
			cs.handleNotification(n)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for id, r := range cs.rooms {
				done := make(chan struct{})
				r.exit <- exitReq{done: done}
				<-done
				delete(cs.rooms, id)
			}

			cs.stopAllClients()
			close(req.done)
			return
		}
	}
}

// handleJoin attaches the client to its room, loading the room from the
// database on first connection. Expired rooms are deleted on the spot and
// reported as not found.
func (cs *ChatServer) handleJoin(c *Client) {
	r, ok := cs.rooms[c.roomId]
	if !ok {
		dbRoom, err := cs.db.GetRoom(c.roomId)
		if err != nil {
			if errors.Is(err, database.ErrRoomNotFound) {
				c.queueMessage(ErrRoomNotFound(0))
			} else {
				cs.log.Println("GetRoom:", err)
				c.queueMessage(ErrInternalError(0))
			}
			c.stopClient()
			return
		}

		if policy.IsExpired(dbRoom.Type(), time.Now()) {
			if err := cs.db.DeleteRoom(dbRoom.Id); err != nil && !errors.Is(err, database.ErrRoomNotFound) {
				cs.log.Println("DeleteRoom:", err)
			}
			cs.stats.Incr(stats.RoomsExpired)
			c.queueMessage(ErrRoomNotFound(0))
			c.stopClient()
			return
		}

		r = newRoom(dbRoom, cs)
		cs.rooms[r.id] = r
		cs.stats.Incr(stats.RoomsLoaded)
		go r.start()
	}

	select {
	case r.joinChan <- c:
	default:
		cs.log.Printf("join channel full on room %q", r.id)
		c.queueMessage(ErrServiceUnavailable(0))
	}
}

func (cs *ChatServer) handleUnload(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		return
	}

	cs.log.Printf("unloading room %q", req.roomId)
	delete(cs.rooms, req.roomId)

	done := make(chan struct{})
	r.exit <- exitReq{deleted: req.deleted, done: done}
	<-done
}

func (cs *ChatServer) handleNotification(n *roomNotification) {
	r, ok := cs.rooms[n.roomId]

	if n.deleted {
		if ok {
			cs.handleUnload(unloadRoomRequest{roomId: n.roomId, deleted: true})
		}
		return
	}

	if !ok {
		// no live connections for this room, nothing to push
		return
	}

	select {
	case r.serverMsgChan <- n.msg:
	default:
		cs.log.Printf("notification channel full on room %q, dropping event", n.roomId)
	}
}

// NotifyMessage pushes a message persisted over the REST API to the room's
// connected clients. Best effort: a full channel drops the event and clients
// catch up on their next poll.
func (cs *ChatServer) NotifyMessage(roomId string, msg types.Message) {
	cs.notify(&roomNotification{
		roomId: roomId,
		msg: &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
			Message:     &msg,
		},
	})
}

// NotifyMemberJoined announces a member admitted over the REST API.
func (cs *ChatServer) NotifyMemberJoined(roomId, name string, members []string) {
	cs.notify(&roomNotification{
		roomId: roomId,
		msg: &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				MemberJoined: &MemberJoined{
					RoomId:  roomId,
					Name:    name,
					Members: members,
				},
			},
		},
	})
}

// NotifyRoomDeleted tells connected clients the room is gone and unloads it.
func (cs *ChatServer) NotifyRoomDeleted(roomId string) {
	cs.notify(&roomNotification{roomId: roomId, deleted: true})
}

func (cs *ChatServer) notify(n *roomNotification) {
	select {
	case cs.notifyChan <- n:
	default:
		cs.log.Printf("notify channel full, dropping event for room %q", n.roomId)
	}
}

// RegisterClient hands a new connection to the run loop, which registers
// it and attaches it to its room.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ClientsConnected)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr(stats.ClientsConnected)
	}
}

func (cs *ChatServer) stopAllClients() {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	for c := range cs.clients {
		c.stopClient()
		delete(cs.clients, c)
	}
}

// Shutdown stops all rooms and client connections, waiting until the run
// loop has drained or ctx expires.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	done := make(chan struct{})
	select {
	case cs.stop <- stopRequest{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
