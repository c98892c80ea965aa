package realtime

import (
	"slices"
	"sync"

	"devunity/internal/domain"

	"go.uber.org/zap"
)

// Peer is one socket as seen by the registry.
type Peer interface {
	ID() string
	User() *domain.User
	Send(msg []byte) bool
}

// Registry tracks room membership in process. A room holds at most one peer
// per user; a newer socket from the same user replaces the older one.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[uint64]Peer
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{rooms: make(map[string]map[uint64]Peer), log: log}
}

// Join adds p to room and returns the peer it replaced, if any.
func (r *Registry) Join(room string, p Peer) Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[uint64]Peer)
		r.rooms[room] = members
	}
	uid := p.User().ID
	prev := members[uid]
	members[uid] = p
	if prev != nil && prev.ID() != p.ID() {
		return prev
	}
	return nil
}

// Leave removes p from room. It reports false when p was not the current
// member for its user, e.g. after being replaced.
func (r *Registry) Leave(room string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(room, p)
}

func (r *Registry) leaveLocked(room string, p Peer) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	uid := p.User().ID
	current, ok := members[uid]
	if !ok || current.ID() != p.ID() {
		return false
	}
	delete(members, uid)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	return true
}

// LeaveAll removes p from every room and returns the rooms it left.
func (r *Registry) LeaveAll(p Peer) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for room := range r.rooms {
		if r.leaveLocked(room, p) {
			left = append(left, room)
		}
	}
	slices.Sort(left)
	return left
}

func (r *Registry) IsMember(room string, p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.rooms[room][p.User().ID]
	return ok && current.ID() == p.ID()
}

// Members lists the users in room ordered by user id.
func (r *Registry) Members(room string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.rooms[room]))
	for _, p := range r.rooms[room] {
		u := p.User()
		members = append(members, Member{UserID: u.ID, Username: u.Username, Avatar: u.Avatar})
	}
	slices.SortFunc(members, func(a, b Member) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return members
}

func (r *Registry) peers(room string, except Peer) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.rooms[room]))
	for _, p := range r.rooms[room] {
		if except != nil && p.ID() == except.ID() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Broadcast sends the event to every member of room.
func (r *Registry) Broadcast(room, event string, payload any) {
	r.BroadcastExcept(room, nil, event, payload)
}

// BroadcastExcept sends the event to every member of room but except.
// Slow peers drop the message.
func (r *Registry) BroadcastExcept(room string, except Peer, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		r.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	for _, p := range r.peers(room, except) {
		if !p.Send(msg) {
			r.log.Debug("dropped event for slow peer", zap.String("room", room), zap.String("peer", p.ID()))
		}
	}
}

// Presence broadcasts the full membership of room.
func (r *Registry) Presence(room string) {
	r.Broadcast(room, EventUserPresence, PresencePayload{Room: room, Members: r.Members(room)})
}
