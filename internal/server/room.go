package server

import (
	"hash/fnv"
	"sync"
)

const numShards = 32

// Room is the set of connections joined to one chat. A room exists only
// while at least one connection is joined to it.
type Room struct {
	chatId  string
	clients map[*Client]struct{}
}

func newRoom(chatId string) *Room {
	return &Room{
		chatId:  chatId,
		clients: make(map[*Client]struct{}),
	}
}

func (r *Room) addClient(c *Client) bool {
	if _, ok := r.clients[c]; ok {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

func (r *Room) removeClient(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	return true
}

func (r *Room) isEmpty() bool {
	return len(r.clients) == 0
}

// roomShard owns the rooms whose chat ids hash to it. Its lock guards both
// the rooms map and the client set of every room in it.
type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

type roomTable struct {
	shards [numShards]*roomShard
}

func newRoomTable() *roomTable {
	t := &roomTable{}
	for i := range t.shards {
		t.shards[i] = &roomShard{rooms: make(map[string]*Room)}
	}
	return t
}

func (t *roomTable) shard(chatId string) *roomShard {
	h := fnv.New32a()
	h.Write([]byte(chatId))
	return t.shards[h.Sum32()%numShards]
}

// add joins c to the room of chatId and reports whether the room had to be
// created.
func (t *roomTable) add(chatId string, c *Client) bool {
	s := t.shard(chatId)
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[chatId]
	if !ok {
		r = newRoom(chatId)
		s.rooms[chatId] = r
	}
	r.addClient(c)

	return !ok
}

// remove drops c from the room of chatId and reports whether the room was
// unloaded as a result.
func (t *roomTable) remove(chatId string, c *Client) bool {
	s := t.shard(chatId)
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[chatId]
	if !ok || !r.removeClient(c) {
		return false
	}

	if r.isEmpty() {
		delete(s.rooms, chatId)
		return true
	}

	return false
}

// targets returns a snapshot of the connections joined to chatId.
func (t *roomTable) targets(chatId string) []*Client {
	s := t.shard(chatId)
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[chatId]
	if !ok {
		return nil
	}

	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}

	return clients
}

func (t *roomTable) count() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.rooms)
		s.mu.RUnlock()
	}
	return n
}
