package editsession

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"devunity/internal/realtime"

	"github.com/gorilla/websocket"
)

// Channel is the presence and chat connection.
type Channel interface {
	JoinDocument(ctx context.Context, docID uint64) error
	LeaveDocument(ctx context.Context, docID uint64) error
	SendMessage(ctx context.Context, docID uint64, content string) error
	Events() <-chan realtime.Envelope
	Close() error
}

const channelWriteWait = 10 * time.Second

// SocketChannel speaks the server's socket protocol.
type SocketChannel struct {
	conn   *websocket.Conn
	writes sync.Mutex
	events chan realtime.Envelope
	once   sync.Once
}

// DialChannel connects to the socket endpoint; baseURL is the http(s) server address.
func DialChannel(ctx context.Context, baseURL, token string) (*SocketChannel, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/socket")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	ch := &SocketChannel{conn: conn, events: make(chan realtime.Envelope, 64)}
	go ch.readLoop()
	return ch, nil
}

func (ch *SocketChannel) readLoop() {
	defer close(ch.events)
	for {
		var env realtime.Envelope
		if err := ch.conn.ReadJSON(&env); err != nil {
			return
		}
		select {
		case ch.events <- env:
		default:
			// nobody is draining; presence is best effort
		}
	}
}

func (ch *SocketChannel) emit(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(channelWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	ch.writes.Lock()
	defer ch.writes.Unlock()
	ch.conn.SetWriteDeadline(deadline)
	return ch.conn.WriteJSON(realtime.Envelope{Event: event, Data: raw})
}

func (ch *SocketChannel) JoinDocument(ctx context.Context, docID uint64) error {
	return ch.emit(ctx, realtime.EventJoinDocument, realtime.DocumentPayload{DocumentID: docID})
}

func (ch *SocketChannel) LeaveDocument(ctx context.Context, docID uint64) error {
	return ch.emit(ctx, realtime.EventLeaveDocument, realtime.DocumentPayload{DocumentID: docID})
}

func (ch *SocketChannel) SendMessage(ctx context.Context, docID uint64, content string) error {
	return ch.emit(ctx, realtime.EventSendMessage, realtime.MessagePayload{DocumentID: docID, Content: content})
}

func (ch *SocketChannel) Events() <-chan realtime.Envelope {
	return ch.events
}

func (ch *SocketChannel) Close() error {
	var err error
	ch.once.Do(func() {
		ch.writes.Lock()
		ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ch.writes.Unlock()
		err = ch.conn.Close()
	})
	return err
}
