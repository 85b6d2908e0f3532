package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/stats"
	"github.com/npezzotti/go-groupchat/internal/types"
	"golang.org/x/time/rate"
)

const (
	metricActiveClients = "NumActiveClients"
	metricActiveRooms   = "NumActiveRooms"
	metricMessages      = "NumMessages"
	metricJoins         = "NumJoins"
)

// errClientClosed is returned by Join when the connection has already left.
var errClientClosed = errors.New("connection closed")

// MembershipChecker validates join requests against the store.
type MembershipChecker interface {
	AuthorizeJoin(ctx context.Context, chatId, userId string) error
}

// MessageSubmitter validates and persists outgoing messages.
type MessageSubmitter interface {
	Submit(ctx context.Context, req chat.SendRequest) (types.Message, error)
}

// ChatServer is the membership registry and room router. It maps users to
// their live connection and chats to the connections joined to them.
type ChatServer struct {
	log         *log.Logger
	members     MembershipChecker
	pipeline    MessageSubmitter
	stats       stats.StatsProvider
	rooms       *roomTable
	userMap     map[string]*Client
	usersLock   sync.RWMutex
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	wg          sync.WaitGroup
	sendLimit   rate.Limit
	sendBurst   int
}

func NewChatServer(logger *log.Logger, members MembershipChecker, pipeline MessageSubmitter, su stats.StatsProvider) (*ChatServer, error) {
	for _, m := range []string{metricActiveClients, metricActiveRooms, metricMessages, metricJoins} {
		su.RegisterMetric(m)
	}

	return &ChatServer{
		log:       logger,
		members:   members,
		pipeline:  pipeline,
		stats:     su,
		rooms:     newRoomTable(),
		userMap:   make(map[string]*Client),
		clients:   make(map[*Client]struct{}),
		sendLimit: rate.Inf,
	}, nil
}

// SetSendRate limits how many messages per second each connection may send.
// A non-positive rate disables the limit.
func (cs *ChatServer) SetSendRate(perSecond float64, burst int) {
	if perSecond <= 0 {
		cs.sendLimit = rate.Inf
		return
	}

	cs.sendLimit = rate.Limit(perSecond)
	cs.sendBurst = max(burst, 1)
}

func (cs *ChatServer) newLimiter() *rate.Limiter {
	return rate.NewLimiter(cs.sendLimit, cs.sendBurst)
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.wg.Add(1)
	cs.stats.Incr(metricActiveClients)
}

func (cs *ChatServer) deregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.wg.Done()
	cs.stats.Decr(metricActiveClients)
}

// Join validates that userId may join chatId and then makes c a delivery
// target for the chat. The user's connection mapping is overwritten by c.
// On failure the registry is left unchanged.
func (cs *ChatServer) Join(ctx context.Context, c *Client, chatId, userId string) error {
	if err := cs.members.AuthorizeJoin(ctx, chatId, userId); err != nil {
		return err
	}

	if !cs.bindUser(c, userId) {
		return errClientClosed
	}

	if c.addRoom(chatId, cs.rooms) {
		cs.stats.Incr(metricActiveRooms)
	}

	cs.stats.Incr(metricJoins)
	cs.log.Printf("user %q joined chat %q", userId, chatId)
	return nil
}

// bindUser maps userId to c, replacing any earlier connection of the user.
// Binding c to a different user drops it from the rooms it joined as the
// previous user. It fails once c has left.
func (cs *ChatServer) bindUser(c *Client, userId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	prev := c.userId
	if prev != "" && prev != userId {
		for chatId := range c.rooms {
			if cs.rooms.remove(chatId, c) {
				cs.stats.Decr(metricActiveRooms)
			}
		}
		clear(c.rooms)
		cs.log.Printf("connection switched from user %q to %q", prev, userId)
	}

	cs.usersLock.Lock()
	defer cs.usersLock.Unlock()

	if prev != "" && prev != userId && cs.userMap[prev] == c {
		delete(cs.userMap, prev)
	}
	c.userId = userId
	cs.userMap[userId] = c

	return true
}

// Leave removes c from every room it joined and drops the user mapping if
// it still points at c. Calling it again is a no-op.
func (cs *ChatServer) Leave(c *Client) {
	userId, chatIds := c.detach()

	if userId != "" {
		cs.usersLock.Lock()
		if cs.userMap[userId] == c {
			delete(cs.userMap, userId)
		}
		cs.usersLock.Unlock()
	}

	for _, chatId := range chatIds {
		if cs.rooms.remove(chatId, c) {
			cs.stats.Decr(metricActiveRooms)
		}
	}
}

// DeliverTargets returns the connections currently joined to chatId.
func (cs *ChatServer) DeliverTargets(chatId string) []*Client {
	return cs.rooms.targets(chatId)
}

// Connection returns the live connection mapped to userId.
func (cs *ChatServer) Connection(userId string) (*Client, bool) {
	cs.usersLock.RLock()
	defer cs.usersLock.RUnlock()

	c, ok := cs.userMap[userId]
	return c, ok
}

// Broadcast queues msg on every delivery target of chatId and returns the
// number of connections it was queued on. A full connection is skipped.
func (cs *ChatServer) Broadcast(chatId string, msg *ServerMessage) int {
	delivered := 0
	for _, c := range cs.DeliverTargets(chatId) {
		if c.queueMessage(msg) {
			delivered++
		}
	}

	return delivered
}

// Submit persists req through the message pipeline.
func (cs *ChatServer) Submit(ctx context.Context, req chat.SendRequest) (types.Message, error) {
	m, err := cs.pipeline.Submit(ctx, req)
	if err != nil {
		return types.Message{}, err
	}

	cs.stats.Incr(metricMessages)
	return m, nil
}

// Shutdown stops every connection and waits for their cleanup to finish.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("closing client connections")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
