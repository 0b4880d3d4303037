package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

// allRaces é a chave das conexões que recebem todos os anúncios
const allRaces int64 = 0

// Hub gerencia conexões WebSocket e assinaturas de anúncios de corrida
// subs: mapeia raceID para o conjunto de conexões inscritas
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[int64]map[*conn]struct{}
}

// conn serializa as escritas; gorilla/websocket não aceita writers concorrentes
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[int64]map[*conn]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Sem mensagens do cliente, a conexão já recebe todos os anúncios.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: wsConn}
	defer wsConn.Close()

	h.subscribe(c, allRaces)
	defer h.drop(c)

	for {
		var msg ClientMsg
		if err := wsConn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			h.unsubscribe(c, allRaces)
			h.subscribe(c, msg.RaceID)
		case "unsubscribe":
			h.unsubscribe(c, msg.RaceID)
		case "ping":
			b, _ := json.Marshal(map[string]string{"type": "pong"})
			_ = c.write(b)
		}
	}
}

func (h *Hub) subscribe(c *conn, raceID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[raceID]; !ok {
		h.subs[raceID] = make(map[*conn]struct{})
	}
	h.subs[raceID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *conn, raceID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[raceID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, raceID)
		}
	}
}

// drop remove a conexão de todas as assinaturas ao desconectar
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Broadcast envia o anúncio para quem assina a corrida e para quem assina todas
func (h *Hub) Broadcast(a events.RaceAnnouncement) {
	h.mu.RLock()
	targets := make(map[*conn]struct{})
	for _, id := range []int64{allRaces, a.RaceID} {
		for c := range h.subs[id] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, _ := json.Marshal(a)
	for c := range targets {
		_ = c.write(b)
	}
}

// Subscribers retorna quantas conexões estão inscritas na corrida (0 = todas)
func (h *Hub) Subscribers(raceID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[raceID])
}
