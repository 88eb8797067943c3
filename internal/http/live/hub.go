// README: Live-tracking hub; fans tracking and driver-position updates out to websocket subscribers per delivery.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"tawsil/internal/logger"
	"tawsil/internal/modules/delivery"
	"tawsil/internal/modules/location"
	"tawsil/internal/types"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	// sendBuffer is how many messages a subscriber may lag behind before
	// it is dropped.
	sendBuffer = 32
)

type Message struct {
	Type     string             `json:"type"`
	Tracking *delivery.Tracking `json:"tracking,omitempty"`
	Location *location.Update   `json:"location,omitempty"`
}

type room struct {
	clients map[*client]struct{}
	last    *delivery.Tracking
}

// Hub keeps one room per delivery. It implements both the dispatcher's
// tracking publisher and the location service publisher.
type Hub struct {
	mu    sync.RWMutex
	rooms map[types.ID]*room
	// active maps a driver to the delivery they are currently serving.
	active map[types.ID]types.ID
	log    logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		rooms:  make(map[types.ID]*room),
		active: make(map[types.ID]types.ID),
		log:    logger.Component(log, "live"),
	}
}

func (h *Hub) roomLocked(id types.ID) *room {
	r, ok := h.rooms[id]
	if !ok {
		r = &room{clients: make(map[*client]struct{})}
		h.rooms[id] = r
	}
	return r
}

// PublishTracking records the latest tracking and pushes it to subscribers.
// Terminal deliveries release their driver and drop the room once empty.
func (h *Hub) PublishTracking(t delivery.Tracking) {
	h.mu.Lock()
	r := h.roomLocked(t.ID)
	snapshot := t
	r.last = &snapshot
	if t.DriverID != nil {
		if t.Status.Terminal() {
			delete(h.active, *t.DriverID)
		} else {
			h.active[*t.DriverID] = t.ID
		}
	}
	clients := r.snapshotClients()
	if t.Status.Terminal() && len(clients) == 0 {
		delete(h.rooms, t.ID)
	}
	h.mu.Unlock()

	h.broadcast(clients, Message{Type: "tracking", Tracking: &snapshot})
}

// PublishLocation forwards a driver position to the delivery that driver
// is serving, if any.
func (h *Hub) PublishLocation(u location.Update) {
	h.mu.RLock()
	id, ok := h.active[u.DriverID]
	var clients []*client
	if ok {
		if r, found := h.rooms[id]; found {
			clients = r.snapshotClients()
		}
	}
	h.mu.RUnlock()

	if len(clients) > 0 {
		h.broadcast(clients, Message{Type: "driver_loc", Location: &u})
	}
}

// Subscribers reports how many clients watch a delivery.
func (h *Hub) Subscribers(id types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[id]; ok {
		return len(r.clients)
	}
	return 0
}

// Serve registers conn for deliveryID, sends the last known tracking and
// then writes queued messages until the peer goes away, ctx ends or the
// client falls too far behind.
func (h *Hub) Serve(ctx context.Context, deliveryID types.ID, conn *websocket.Conn) {
	c := newClient()
	h.mu.Lock()
	r := h.roomLocked(deliveryID)
	r.clients[c] = struct{}{}
	last := r.last
	h.mu.Unlock()
	defer h.remove(deliveryID, c)

	if last != nil {
		b, err := json.Marshal(Message{Type: "tracking", Tracking: last})
		if err != nil || write(ctx, conn, b) != nil {
			return
		}
	}

	// Clients only listen; CloseRead discards their frames and cancels ctx
	// when the connection drops.
	ctx = conn.CloseRead(ctx)
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.gone:
			conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case b := <-c.send:
			if err := write(ctx, conn, b); err != nil {
				h.log.Warning("websocket send failed", logger.String("delivery_id", string(deliveryID)), logger.Error(err))
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

func (h *Hub) remove(id types.ID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		return
	}
	delete(r.clients, c)
	if len(r.clients) == 0 && (r.last == nil || r.last.Status.Terminal()) {
		delete(h.rooms, id)
	}
}

// broadcast queues msg for every client without waiting on any of them.
// A client whose queue is full is dropped.
func (h *Hub) broadcast(clients []*client, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode live message failed", logger.String("type", msg.Type), logger.Error(err))
		return
	}
	for _, c := range clients {
		if c.enqueue(b) {
			h.log.Warning("dropping slow websocket client", logger.String("type", msg.Type))
		}
	}
}

func (r *room) snapshotClients() []*client {
	out := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

type client struct {
	send     chan []byte
	gone     chan struct{}
	goneOnce sync.Once
}

func newClient() *client {
	return &client{send: make(chan []byte, sendBuffer), gone: make(chan struct{})}
}

// enqueue queues b and reports whether this call dropped the client.
func (c *client) enqueue(b []byte) (dropped bool) {
	select {
	case <-c.gone:
		return false
	default:
	}
	select {
	case c.send <- b:
		return false
	default:
		c.goneOnce.Do(func() {
			close(c.gone)
			dropped = true
		})
		return dropped
	}
}
