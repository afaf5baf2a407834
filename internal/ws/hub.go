// Package ws owns the push channel: the connection registry, presence
// tracking, fan-out of task events and addressed notification delivery.
// All registry and presence state is mutated only inside the Run loop, so a
// single hub needs no locks; one process owns all live connections.
package ws

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"example.com/teamboard/internal/event"
)

type directMessage struct {
	userIDs []string
	frame   []byte
}

type broadcastMessage struct {
	frame []byte
}

// Hub routes frames to sessions. Delivery is best-effort and fire-and-forget:
// a full per-session buffer drops the session rather than blocking the loop,
// and nothing is queued for clients that are not connected.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	register   chan *session
	unregister chan *session
	broadcast  chan broadcastMessage
	direct     chan directMessage
	snapshot   chan chan []string

	// byUser is the addressing table: user id -> live sessions. A user is
	// online iff it has an entry; entries are removed, not zeroed.
	byUser   map[string]map[*session]struct{}
	lastSeen map[string]time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		now:        time.Now,
		register:   make(chan *session),
		unregister: make(chan *session),
		broadcast:  make(chan broadcastMessage, 256),
		direct:     make(chan directMessage, 256),
		snapshot:   make(chan chan []string),
		byUser:     make(map[string]map[*session]struct{}),
		lastSeen:   make(map[string]time.Time),
	}
}

// Run executes the hub loop until ctx is cancelled, then closes every live
// session. It must be running before any session is registered.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case s := <-h.register:
			h.add(s)
		case s := <-h.unregister:
			h.remove(s)
		case msg := <-h.broadcast:
			h.fanOut(msg.frame, nil)
		case msg := <-h.direct:
			h.sendToUsers(msg.userIDs, msg.frame)
		case reply := <-h.snapshot:
			reply <- h.online()
		case <-ctx.Done():
			for _, sessions := range h.byUser {
				for s := range sessions {
					close(s.send)
				}
			}
			h.byUser = make(map[string]map[*session]struct{})
			return
		}
	}
}

// Broadcast publishes ev to every connected client. Emission never blocks
// the caller: if the hub is saturated the event is dropped and logged, and
// the mutation's HTTP response is unaffected.
func (h *Hub) Broadcast(ev event.Event) {
	frame, err := ev.Marshal()
	if err != nil {
		h.logger.Error("marshal broadcast event", "type", ev.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- broadcastMessage{frame: frame}:
	default:
		h.logger.Warn("broadcast queue full, dropping event", "type", ev.Type)
	}
}

// Notify delivers ev only to sessions bound to one of userIDs. Targets with
// no live connection receive nothing; there is no backlog.
func (h *Hub) Notify(userIDs []string, ev event.Event) {
	if len(userIDs) == 0 {
		return
	}
	frame, err := ev.Marshal()
	if err != nil {
		h.logger.Error("marshal notification", "type", ev.Type, "err", err)
		return
	}
	select {
	case h.direct <- directMessage{userIDs: userIDs, frame: frame}:
	default:
		h.logger.Warn("direct queue full, dropping notification", "type", ev.Type)
	}
}

// Online returns the current online user ids, sorted.
func (h *Hub) Online() []string {
	reply := make(chan []string, 1)
	h.snapshot <- reply
	return <-reply
}

func (h *Hub) add(s *session) {
	// Snapshot before the connect is applied: the newly connected client
	// sees who was online when it arrived, never itself.
	s.trySend(mustFrame(event.OnlineMembers(h.onlineExcept(s.userID))))

	first := len(h.byUser[s.userID]) == 0
	if h.byUser[s.userID] == nil {
		h.byUser[s.userID] = make(map[*session]struct{})
	}
	h.byUser[s.userID][s] = struct{}{}
	delete(h.lastSeen, s.userID)

	if first {
		h.fanOut(mustFrame(event.MemberConnected(s.userID)), s)
	}
	h.logger.Info("session connected", "conn", s.id, "user", s.userID)
}

func (h *Hub) remove(s *session) {
	sessions, ok := h.byUser[s.userID]
	if !ok {
		return
	}
	if _, ok := sessions[s]; !ok {
		return
	}
	delete(sessions, s)
	close(s.send)

	if len(sessions) == 0 {
		delete(h.byUser, s.userID)
		ts := h.now().UTC()
		h.lastSeen[s.userID] = ts
		h.fanOut(mustFrame(event.MemberDisconnected(s.userID, ts)), nil)
	}
	h.logger.Info("session disconnected", "conn", s.id, "user", s.userID)
}

func (h *Hub) fanOut(frame []byte, skip *session) {
	var slow []*session
	for _, sessions := range h.byUser {
		for s := range sessions {
			if s == skip {
				continue
			}
			if !s.trySend(frame) {
				slow = append(slow, s)
			}
		}
	}
	h.dropSlow(slow)
}

func (h *Hub) sendToUsers(userIDs []string, frame []byte) {
	var slow []*session
	for _, userID := range userIDs {
		for s := range h.byUser[userID] {
			if !s.trySend(frame) {
				slow = append(slow, s)
			}
		}
	}
	h.dropSlow(slow)
}

func (h *Hub) dropSlow(slow []*session) {
	for _, s := range slow {
		h.logger.Warn("send buffer full, dropping session", "conn", s.id, "user", s.userID)
		h.remove(s)
	}
}

func (h *Hub) online() []string {
	return h.onlineExcept("")
}

func (h *Hub) onlineExcept(skipUserID string) []string {
	res := make([]string, 0, len(h.byUser))
	for userID := range h.byUser {
		if userID == skipUserID {
			continue
		}
		res = append(res, userID)
	}
	sort.Strings(res)
	return res
}

func mustFrame(ev event.Event) []byte {
	frame, err := ev.Marshal()
	if err != nil {
		panic(err)
	}
	return frame
}
