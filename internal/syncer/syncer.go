// Package syncer keeps a client's view of a room consistent by combining
// periodic polling with best-effort push events. Polling is the source of
// truth: a poll replaces the view wholesale, while push events are merged
// in between polls with dedup so a message seen on both paths appears once.
package syncer

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRoomGone is returned by FetchFunc when the room no longer exists,
// either expired or deleted by its creator.
var ErrRoomGone = errors.New("room gone")

// Room and Message mirror the server wire types; the syncer only needs the
// fields it merges on.
type Room struct {
	Id      string
	Name    string
	Members []string
}

type Message struct {
	Id        string
	Content   string
	Sender    string
	Timestamp int64
}

// FetchFunc reads the authoritative room state, typically GET /api/rooms?id=.
type FetchFunc func(ctx context.Context, roomId string) (Room, []Message, error)

// PostFunc persists a message, typically POST /api/messages.
type PostFunc func(ctx context.Context, roomId string, msg Message) error

// Event is a push notification received over the websocket.
type Event struct {
	// Message is set for a published message.
	Message *Message
	// Members, when non-nil, is the full roster after a join.
	Members []string
	// RoomDeleted reports the room is gone.
	RoomDeleted bool
}

// RoomView is the client's merged picture of a room. Safe for concurrent
// use by the poll loop, the push consumer, and the UI reading snapshots.
type RoomView struct {
	mu       sync.RWMutex
	room     Room
	messages []Message
	deleted  bool
}

func NewRoomView(room Room) *RoomView {
	return &RoomView{room: room}
}

// Replace installs a polled snapshot wholesale, superseding anything merged
// from push events.
func (v *RoomView) Replace(room Room, messages []Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.room = room
	v.messages = slices.Clone(messages)
}

// ApplyMessage merges a pushed message, deduplicating by id and keeping the
// log ordered by timestamp.
func (v *RoomView) ApplyMessage(msg Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, m := range v.messages {
		if m.Id == msg.Id {
			return
		}
	}

	// insert after the last message with an equal or earlier timestamp
	i := len(v.messages)
	for i > 0 && v.messages[i-1].Timestamp > msg.Timestamp {
		i--
	}
	v.messages = slices.Insert(v.messages, i, msg)
}

// RemoveMessage rolls back an optimistic apply whose persist failed.
func (v *RoomView) RemoveMessage(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = slices.DeleteFunc(v.messages, func(m Message) bool {
		return m.Id == id
	})
}

// ApplyMember adds a display name to the roster, deduplicating by exact
// name match.
func (v *RoomView) ApplyMember(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if slices.Contains(v.room.Members, name) {
		return
	}
	v.room.Members = append(v.room.Members, name)
}

// ReplaceMembers installs the full roster from a member_joined event.
func (v *RoomView) ReplaceMembers(members []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.room.Members = slices.Clone(members)
}

// MarkDeleted freezes the view once the room is gone.
func (v *RoomView) MarkDeleted() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleted = true
}

func (v *RoomView) Deleted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.deleted
}

// Snapshot returns a copy of the current view for rendering.
func (v *RoomView) Snapshot() (Room, []Message) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	room := v.room
	room.Members = slices.Clone(v.room.Members)
	return room, slices.Clone(v.messages)
}

// Coordinator drives a RoomView: it polls on a ticker, consumes push
// events, and sends messages optimistically.
type Coordinator struct {
	log      *log.Logger
	roomId   string
	view     *RoomView
	fetch    FetchFunc
	post     PostFunc
	interval time.Duration
	events   chan Event
	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewCoordinator(logger *log.Logger, roomId string, view *RoomView,
	fetch FetchFunc, post PostFunc, interval time.Duration) *Coordinator {
	return &Coordinator{
		log:      logger,
		roomId:   roomId,
		view:     view,
		fetch:    fetch,
		post:     post,
		interval: interval,
		events:   make(chan Event, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Coordinator) Run() {
	if c.started.CompareAndSwap(false, true) {
		go c.run()
	}
}

func (c *Coordinator) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.poll()
		case ev := <-c.events:
			c.applyEvent(ev)
		case <-c.stop:
			return
		}
	}
}

func (c *Coordinator) poll() {
	if c.view.Deleted() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	room, messages, err := c.fetch(ctx, c.roomId)
	if err != nil {
		if errors.Is(err, ErrRoomGone) {
			c.view.MarkDeleted()
			return
		}
		// transient, the next tick retries
		c.log.Printf("poll room %q: %v", c.roomId, err)
		return
	}

	c.view.Replace(room, messages)
}

func (c *Coordinator) applyEvent(ev Event) {
	switch {
	case ev.RoomDeleted:
		c.view.MarkDeleted()
	case ev.Message != nil:
		c.view.ApplyMessage(*ev.Message)
	case ev.Members != nil:
		c.view.ReplaceMembers(ev.Members)
	}
}

// Deliver queues a push event for merging. Drops the event when the queue
// is full; the next poll reconciles.
func (c *Coordinator) Deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	default:
		c.log.Printf("event queue full for room %q, dropping", c.roomId)
	}
}

// Send applies the message locally, then persists it; on failure the local
// apply is rolled back and the error returned.
func (c *Coordinator) Send(ctx context.Context, msg Message) error {
	c.view.ApplyMessage(msg)

	if err := c.post(ctx, c.roomId, msg); err != nil {
		c.view.RemoveMessage(msg.Id)
		return err
	}

	return nil
}

// Close stops the poll loop and waits for it to exit. No timers or
// goroutines survive a Close.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	if c.started.Load() {
		<-c.done
	}
}
