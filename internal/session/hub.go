package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"codeshare/internal/activity"
	"codeshare/internal/metrics"
	"codeshare/internal/models"
	"codeshare/internal/utils"
)

// ErrHubStopped is returned by entry points once Run has exited.
var ErrHubStopped = errors.New("hub stopped")

const inboxSize = 256

// Options tunes idle session eviction.
type Options struct {
	// IdleTTL enables eviction of sessions with no connections whose last
	// update is older than the TTL. Zero keeps sessions forever.
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type eventKind int

const (
	evConnect eventKind = iota
	evFrame
	evDisconnect
	evUpdate
	evSweep
)

type update struct {
	sessionID string
	code      *string
	language  models.Language
}

type event struct {
	kind   eventKind
	client *Client
	frame  models.WSFrame
	update update
	ctx    context.Context
	reply  chan error
}

// Hub routes connection events to the store and fans results out to the
// session's broadcast group. All events are handled one at a time by Run; the
// rooms and members maps are owned by that goroutine.
type Hub struct {
	store    *Store
	log      *utils.Logger
	activity activity.Publisher
	opts     Options
	now      func() time.Time

	rooms   map[string]*Room
	members map[*Client]string

	inbox   chan event
	stopped chan struct{}

	overflowMu sync.Mutex
	overflowed []*Client
}

// NewHub builds a hub over store. A nil pub disables activity publishing.
func NewHub(store *Store, log *utils.Logger, pub activity.Publisher, opts Options) *Hub {
	if pub == nil {
		pub = activity.Nop{}
	}
	if opts.IdleTTL > 0 && opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Hub{
		store:    store,
		log:      log,
		activity: pub,
		opts:     opts,
		now:      time.Now,
		rooms:    make(map[string]*Room),
		members:  make(map[*Client]string),
		inbox:    make(chan event, inboxSize),
		stopped:  make(chan struct{}),
	}
}

// Store exposes the session registry for read-only request handlers.
func (h *Hub) Store() *Store { return h.store }

// Run processes events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	var sweep <-chan time.Time
	if h.opts.IdleTTL > 0 {
		ticker := time.NewTicker(h.opts.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.inbox:
			h.process(ev)
		case <-sweep:
			h.process(event{kind: evSweep})
		}
	}
}

func (h *Hub) submit(ev event) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}
	select {
	case h.inbox <- ev:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Connect registers a freshly opened connection (state Unjoined).
func (h *Hub) Connect(c *Client) error {
	return h.submit(event{kind: evConnect, client: c})
}

// Submit queues an inbound frame from c. Frames from one connection are
// handled in the order they are submitted.
func (h *Hub) Submit(c *Client, frame models.WSFrame) error {
	return h.submit(event{kind: evFrame, client: c, frame: frame})
}

// Disconnect releases every reference the hub holds to c and closes its queue.
func (h *Hub) Disconnect(c *Client) error {
	return h.submit(event{kind: evDisconnect, client: c})
}

// UpdateCode applies a request/response code update (and optional language)
// and pushes it to every connection in the session. It returns ErrNotFound
// when the session does not exist. An update whose ctx is done by the time the
// hub reaches it is skipped and ctx.Err() is returned; any other result means
// the update was applied.
func (h *Hub) UpdateCode(ctx context.Context, sessionID string, code *string, lang models.Language) error {
	reply := make(chan error, 1)
	ev := event{
		kind:   evUpdate,
		update: update{sessionID: sessionID, code: code, language: lang},
		ctx:    ctx,
		reply:  reply,
	}
	if err := h.submit(ev); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.stopped:
		return ErrHubStopped
	}
}

// CreateSession stores a new session with a generated id. It does not touch
// broadcast groups so it runs on the caller's goroutine.
func (h *Hub) CreateSession(lang models.Language, initialCode string) models.Session {
	sess := h.store.Create("", lang)
	if initialCode != "" {
		h.store.SetCode(sess.SessionID, initialCode)
		sess.Code = initialCode
	}
	h.activity.Publish(models.ActivityEvent{Type: models.ActivitySessionCreated, SessionID: sess.SessionID})
	metrics.SetSessions(h.store.Len())
	return sess
}

func (h *Hub) process(ev event) {
	switch ev.kind {
	case evConnect:
		c := ev.client
		metrics.ConnectionOpened()
		c.OnDrop(func() {
			metrics.FrameDropped()
			h.markOverflowed(c)
		})
		h.log.Info("client connected", "clientId", c.ID)
	case evFrame:
		h.dispatch(ev.client, ev.frame)
	case evDisconnect:
		h.disconnect(ev.client)
	case evUpdate:
		if err := ev.ctx.Err(); err != nil {
			ev.reply <- err
			break
		}
		ev.reply <- h.applyUpdate(ev.update)
	case evSweep:
		h.evictIdle()
	}
	h.reapOverflowed()
	metrics.SetJoinedConnections(len(h.members))
	metrics.SetSessions(h.store.Len())
}

func (h *Hub) dispatch(c *Client, frame models.WSFrame) {
	var err error
	switch frame.Type {
	case models.EventJoinSession:
		var p models.JoinSessionPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.join(c, p)
		}
	case models.EventCodeChange:
		var p models.CodeChangePayload
		if err = decode(frame.Data, &p); err == nil {
			h.codeChange(c, p)
		}
	case models.EventLanguageChange:
		var p models.LanguageChangePayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.languageChange(c, p)
		}
	default:
		err = errors.New("unknown_type")
	}
	if err != nil {
		metrics.ObserveEvent(frame.Type, "rejected")
		c.Send(errFrame(err.Error()))
		return
	}
	metrics.ObserveEvent(frame.Type, "ok")
}

func (h *Hub) join(c *Client, p models.JoinSessionPayload) error {
	if p.SessionID == "" {
		return errors.New("sessionId required")
	}

	if prev, ok := h.members[c]; ok {
		h.leaveRoom(c, prev)
	}

	room, ok := h.rooms[p.SessionID]
	if !ok {
		room = NewRoom(p.SessionID)
		h.rooms[p.SessionID] = room
	}
	room.Join(c)
	h.members[c] = p.SessionID

	_, existed := h.store.Get(p.SessionID)
	user := models.User{ID: c.ID, Name: p.User.Name}
	h.store.AddUser(p.SessionID, user)
	sess := h.store.GetOrCreate(p.SessionID)

	c.Send(models.WSFrame{Type: models.EventInitialState, Data: models.InitialState{
		Code:     sess.Code,
		Language: sess.Language,
		Users:    sess.Users,
	}})
	room.Broadcast(c, models.WSFrame{Type: models.EventUsersUpdate, Data: sess.Users})
	room.Broadcast(c, models.WSFrame{Type: models.EventUserJoined, Data: user})

	if !existed {
		h.activity.Publish(models.ActivityEvent{Type: models.ActivitySessionCreated, SessionID: p.SessionID})
	}
	h.activity.Publish(models.ActivityEvent{Type: models.ActivityUserJoined, SessionID: p.SessionID, UserID: user.ID, UserName: user.Name})
	h.log.Info("user joined session", "clientId", c.ID, "sessionId", p.SessionID, "name", user.Name)
	return nil
}

// codeChange forwards to the session's group excluding the sender. Unknown
// sessions are dropped without telling the sender.
func (h *Hub) codeChange(c *Client, p models.CodeChangePayload) {
	if !h.store.SetCode(p.SessionID, p.Code) {
		h.log.Debug("code change for unknown session dropped", "clientId", c.ID, "sessionId", p.SessionID)
		return
	}
	if room, ok := h.rooms[p.SessionID]; ok {
		room.Broadcast(c, models.WSFrame{Type: models.EventCodeUpdate, Data: p.Code})
	}
}

func (h *Hub) languageChange(c *Client, p models.LanguageChangePayload) error {
	if !p.Language.Valid() {
		return fmt.Errorf("unsupported_language: %s", p.Language)
	}
	if !h.store.SetLanguage(p.SessionID, p.Language) {
		h.log.Debug("language change for unknown session dropped", "clientId", c.ID, "sessionId", p.SessionID)
		return nil
	}
	if room, ok := h.rooms[p.SessionID]; ok {
		room.Broadcast(c, models.WSFrame{Type: models.EventLanguageChange, Data: p.Language})
	}
	return nil
}

func (h *Hub) disconnect(c *Client) {
	defer c.Close()
	defer metrics.ConnectionClosed()

	sessionID, ok := h.members[c]
	if !ok {
		h.log.Info("client disconnected", "clientId", c.ID)
		return
	}
	h.leave(c, sessionID)
	h.log.Info("client disconnected", "clientId", c.ID, "sessionId", sessionID)
}

// leave removes a joined client from its session and tells the rest of the
// group.
func (h *Hub) leave(c *Client, sessionID string) {
	h.store.RemoveUser(sessionID, c.ID)
	users := h.store.ListUsers(sessionID)
	if room := h.leaveRoom(c, sessionID); room != nil {
		room.Broadcast(c, models.WSFrame{Type: models.EventUsersUpdate, Data: users})
		room.Broadcast(c, models.WSFrame{Type: models.EventUserLeft, Data: c.ID})
	}
	delete(h.members, c)

	h.activity.Publish(models.ActivityEvent{Type: models.ActivityUserLeft, SessionID: sessionID, UserID: c.ID})
}

func (h *Hub) markOverflowed(c *Client) {
	h.overflowMu.Lock()
	h.overflowed = append(h.overflowed, c)
	h.overflowMu.Unlock()
}

// reapOverflowed drops clients whose send queue overflowed from their session.
// Notifying the remaining members can overflow further clients, so it loops
// until nothing is pending. The connection itself is already closed and its
// reader finishes with a regular Disconnect.
func (h *Hub) reapOverflowed() {
	for {
		h.overflowMu.Lock()
		batch := h.overflowed
		h.overflowed = nil
		h.overflowMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			sessionID, ok := h.members[c]
			if !ok {
				continue
			}
			h.leave(c, sessionID)
			h.log.Warn("slow client dropped from session", "clientId", c.ID, "sessionId", sessionID)
		}
	}
}

// leaveRoom drops c from the group of sessionID, forgetting the group once it
// is empty. It returns the group so callers can notify whoever remains.
func (h *Hub) leaveRoom(c *Client, sessionID string) *Room {
	room, ok := h.rooms[sessionID]
	if !ok {
		return nil
	}
	if room.Leave(c) == 0 {
		delete(h.rooms, sessionID)
	}
	return room
}

func (h *Hub) applyUpdate(u update) error {
	if _, ok := h.store.Get(u.sessionID); !ok {
		return fmt.Errorf("session %s: %w", u.sessionID, ErrNotFound)
	}
	room := h.rooms[u.sessionID]
	if u.code != nil && h.store.SetCode(u.sessionID, *u.code) && room != nil {
		room.Broadcast(nil, models.WSFrame{Type: models.EventCodeUpdate, Data: *u.code})
	}
	if u.language != "" && h.store.SetLanguage(u.sessionID, u.language) && room != nil {
		room.Broadcast(nil, models.WSFrame{Type: models.EventLanguageChange, Data: u.language})
	}
	return nil
}

func (h *Hub) evictIdle() {
	if h.opts.IdleTTL <= 0 {
		return
	}
	cutoff := h.now().Add(-h.opts.IdleTTL)
	evicted := h.store.EvictIdle(cutoff, func(id string) bool {
		room, ok := h.rooms[id]
		return ok && room.GetClientCount() > 0
	})
	for _, id := range evicted {
		delete(h.rooms, id)
		h.activity.Publish(models.ActivityEvent{Type: models.ActivitySessionEvicted, SessionID: id})
	}
	if len(evicted) > 0 {
		metrics.SessionsEvicted(len(evicted))
		h.log.Info("evicted idle sessions", "count", len(evicted))
	}
}

func decode(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("malformed_payload: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("malformed_payload: %w", err)
	}
	return nil
}

func errFrame(msg string) models.WSFrame { return models.WSFrame{Type: models.EventError, Data: msg} }
