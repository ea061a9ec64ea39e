// Package stream broadcasts live transcript segments to websocket
// subscribers. Clients subscribe to a single meeting ID or to "all".
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/meeting"
)

// RoomAll receives segments from every active meeting.
const RoomAll = "all"

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Hub struct {
	lock  sync.RWMutex
	rooms map[string]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*websocket.Conn]bool),
	}
}

func (h *Hub) Register(room string, conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*websocket.Conn]bool)
	}
	h.rooms[room][conn] = true
	log.Debugf("websocket subscriber joined | room: %s, total: %d", room, len(h.rooms[room]))
}

func (h *Hub) Unregister(room string, conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()

	conns, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := conns[conn]; ok {
		delete(conns, conn)
		conn.Close()
		log.Debugf("websocket subscriber left | room: %s, total: %d", room, len(conns))
	}
	if len(conns) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast sends a segment to the meeting's own room and to RoomAll.
func (h *Hub) Broadcast(seg meeting.TranscriptSegment) {
	payload, err := json.Marshal(seg)
	if err != nil {
		log.Errorf("segment marshal failed | error: %v", err)
		return
	}
	h.send(seg.MeetingID, payload)
	h.send(RoomAll, payload)
}

func (h *Hub) send(room string, payload []byte) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	conns, ok := h.rooms[room]
	if !ok || len(conns) == 0 {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debugf("websocket write failed | room: %s, error: %v", room, err)
		}
	}
}

// Subscribers reports connection counts per room.
func (h *Hub) Subscribers() map[string]int {
	h.lock.RLock()
	defer h.lock.RUnlock()

	counts := make(map[string]int, len(h.rooms))
	for room, conns := range h.rooms {
		counts[room] = len(conns)
	}
	return counts
}
