package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-groupchat/internal/chat"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is a single websocket connection.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	authUserId string
	limiter    *rate.Limiter
	send       chan *ServerMessage

	mu     sync.Mutex
	userId string
	rooms  map[string]struct{}
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

// NewClient wraps conn. When authUserId is set the connection may only join
// and send as that user.
func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger, authUserId string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		authUserId: authUserId,
		limiter:    cs.newLimiter(),
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		c.handleMessage(raw)
	}
}

// handleMessage dispatches one inbound event. Failures are reported to this
// connection only.
func (c *Client) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Println("error parsing message:", err)
		c.queueMessage(ErrInvalidMessage(-1))
		return
	}

	msg.client = c
	msg.Timestamp = chat.Now()

	switch {
	case msg.JoinChatRoom != nil:
		c.handleJoin(&msg)
	case msg.SendMessage != nil:
		c.handleSend(&msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) handleJoin(msg *ClientMessage) {
	join := msg.JoinChatRoom
	if join.UserId != "" && !c.actsAs(join.UserId) {
		c.queueMessage(JoinFailed(msg.Id, chat.ErrForbidden))
		return
	}

	if err := c.chatServer.Join(c.ctx, c, join.ChatId, join.UserId); err != nil {
		if errors.Is(err, errClientClosed) {
			return
		}
		c.log.Printf("join %q as %q: %v", join.ChatId, join.UserId, err)
		c.queueMessage(JoinFailed(msg.Id, err))
		return
	}

	c.queueMessage(JoinOK(msg.Id, join.ChatId))
}

// handleSend acknowledges an accepted message to the sender and then
// broadcasts it to the chat.
func (c *Client) handleSend(msg *ClientMessage) {
	req := *msg.SendMessage
	if req.SenderId != "" && !c.actsAs(req.SenderId) {
		c.queueMessage(SendFailed(msg.Id, chat.ErrForbidden))
		return
	}

	if !c.limiter.Allow() {
		c.queueMessage(SendFailed(msg.Id, chat.ErrRateLimited))
		return
	}

	m, err := c.chatServer.Submit(c.ctx, req)
	if err != nil {
		c.log.Printf("send to %q from %q: %v", req.ChatId, req.SenderId, err)
		c.queueMessage(SendFailed(msg.Id, err))
		return
	}

	c.queueMessage(SendOK(msg.Id, m))
	c.chatServer.Broadcast(m.ChatId, Receive(m))
}

func (c *Client) actsAs(userId string) bool {
	return c.authUserId == "" || c.authUserId == userId
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.Leave(c)
	c.stopClient()
	c.chatServer.deregisterClient(c)
}

// UserId returns the user of the last successful join.
func (c *Client) UserId() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userId
}

// JoinedRooms returns the chat ids c is joined to.
func (c *Client) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// addRoom joins c to chatId in rooms and reports whether the room was
// created. c's lock is held across the table update so a concurrent detach
// cannot leave c behind in the room.
func (c *Client) addRoom(chatId string, rooms *roomTable) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if _, ok := c.rooms[chatId]; ok {
		return false
	}

	c.rooms[chatId] = struct{}{}
	return rooms.add(chatId, c)
}

// detach marks the connection as gone and hands back its user and rooms.
func (c *Client) detach() (string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", nil
	}
	c.closed = true

	chatIds := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		chatIds = append(chatIds, id)
	}
	clear(c.rooms)

	return c.userId, chatIds
}
