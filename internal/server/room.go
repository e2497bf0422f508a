package server

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-droproom/internal/database"
	"github.com/npezzotti/go-droproom/internal/stats"
	"github.com/npezzotti/go-droproom/internal/types"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	deleted bool
	done    chan struct{}
}

type Room struct {
	id            string
	memberLimit   int
	expiresAt     int64
	cs            *ChatServer
	joinChan      chan *Client
	leaveChan     chan *Client
	clientMsgChan chan *ClientMessage
	serverMsgChan chan *ServerMessage
	clients       map[*Client]struct{}
	nameMap       map[string]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer is used to automatically unload the room when it is no longer active
	killTimer *time.Timer
	// expireTimer fires when the room's lifetime elapses
	expireTimer *time.Timer
	// exit is used to signal the room to exit
	exit chan exitReq
}

func newRoom(dbRoom database.Room, cs *ChatServer) *Room {
	return &Room{
		id:            dbRoom.Id,
		memberLimit:   dbRoom.MemberLimit,
		expiresAt:     dbRoom.ExpiresAt,
		cs:            cs,
		joinChan:      make(chan *Client, 256),
		leaveChan:     make(chan *Client, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		serverMsgChan: make(chan *ServerMessage, 256),
		clients:       make(map[*Client]struct{}),
		nameMap:       make(map[string]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()
	r.expireTimer = time.NewTimer(time.Until(time.UnixMilli(r.expiresAt)))
	defer r.expireTimer.Stop()

	for {
		select {
		case c := <-r.joinChan:
			r.handleJoin(c)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.saveAndBroadcast(msg)
			}
		case msg := <-r.serverMsgChan:
			r.broadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case <-r.expireTimer.C:
			r.handleExpiry()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(c *Client) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	dbRoom, err := r.cs.db.GetRoom(r.id)
	if err != nil {
		r.log.Println("GetRoom:", err)
		if errors.Is(err, database.ErrRoomNotFound) {
			c.queueMessage(ErrRoomNotFound(0))
		} else {
			c.queueMessage(ErrInternalError(0))
		}
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	r.addClient(c)

	// send the room snapshot to the client
	c.queueMessage(NoErrOK(0, dbRoom.Type()))

	// announce presence on the member's first connection
	if len(r.nameMap[c.name]) == 1 {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				Presence: &Presence{
					RoomId:  r.id,
					Name:    c.name,
					Present: true,
				},
			},
			SkipClient: c,
		})
	}
}

func (r *Room) handleLeave(c *Client) {
	r.removeClient(c)

	// notify remaining clients when the member's last connection is gone
	if r.nameMap[c.name] == nil {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				Presence: &Presence{
					RoomId:  r.id,
					Name:    c.name,
					Present: false,
				},
			},
			SkipClient: c,
		})
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.id)
	r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.id}
}

// handleExpiry deletes the room the moment its lifetime elapses. Messages go
// with it via the cascade constraint.
func (r *Room) handleExpiry() {
	r.log.Printf("room %q expired", r.id)
	if err := r.cs.db.DeleteRoom(r.id); err != nil && !errors.Is(err, database.ErrRoomNotFound) {
		r.log.Println("DeleteRoom:", err)
	}

	r.cs.stats.Incr(stats.RoomsExpired)
	r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.id, deleted: true}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.id)
	if e.deleted {
		// notify all clients that the room is deleted
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.id},
			},
		})
	}

	// detach the room from all clients
	r.clientLock.Lock()
	for c := range r.clients {
		c.detachRoom()
		delete(r.clients, c)
	}
	clear(r.nameMap)
	r.clientLock.Unlock()

	// notify the chat server the room is done cleaning up
	if e.done != nil {
		close(e.done)
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.nameMap[c.name] == nil {
		r.nameMap[c.name] = make(map[*Client]struct{})
	}
	r.nameMap[c.name][c] = struct{}{}

	c.attachRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	// check if the client is in the room
	if _, ok := r.clients[c]; !ok {
		r.log.Printf("client %q not found in room %q", c.name, r.id)
		return
	}

	r.log.Printf("removing client %q from room %q", c.name, r.id)
	delete(r.clients, c)
	c.detachRoom()

	if nameClients, ok := r.nameMap[c.name]; ok {
		delete(nameClients, c)
		if len(nameClients) == 0 {
			delete(r.nameMap, c.name)
		}
	}

	// if the client is the last one in the room, start the kill timer
	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	pub := msg.Publish

	id := pub.MessageId
	if id == "" {
		id = uuid.NewString()
	}

	m := types.Message{
		Id:        id,
		RoomId:    r.id,
		Kind:      types.KindText,
		Content:   pub.Content,
		Sender:    msg.client.name,
		Timestamp: msg.Timestamp,
	}

	// save the message to the database before anyone sees it
	if err := r.cs.db.CreateMessage(database.NewMessage(m)); err != nil {
		r.log.Println("error saving message:", err)
		switch {
		case errors.Is(err, database.ErrRoomNotFound):
			msg.client.queueMessage(ErrRoomNotFound(msg.Id))
		case errors.Is(err, database.ErrDuplicateId):
			msg.client.queueMessage(ErrInvalidMessage(msg.Id))
		default:
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.cs.stats.Incr(stats.MessagesPublished)

	// broadcast the message to all clients in the room
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: m.Timestamp,
		},
		Message: &m,
	})
}

func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
