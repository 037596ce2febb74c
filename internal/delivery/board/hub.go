package board

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	EventReset    = "reset"
	EventUpdate   = "update"
	EventIndicate = "indicate"
	EventOutput   = "output"
	EventShow     = "show"
	EventHide     = "hide"
)

// Event is one message pushed to board clients.
type Event struct {
	Type   string     `json:"type"`
	Size   int        `json:"size,omitempty"`
	Move   *game.Move `json:"move,omitempty"`
	Vertex string     `json:"vertex,omitempty"`
	Line   string     `json:"line,omitempty"`
}

// Hub mirrors a game to every connected websocket client. It implements
// game.BoardObserver; clients that connect late get the current game
// replayed.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	size    int
	history []Event
	showing bool
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:     log,
		conns:   make(map[*websocket.Conn]struct{}),
		size:    19,
		showing: true,
	}
}

func (h *Hub) Reset(boardSize int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.size = boardSize
	h.history = h.history[:0]
	h.publish(Event{Type: EventReset, Size: boardSize}, true)
}

func (h *Hub) Update(m game.Move) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publish(Event{Type: EventUpdate, Move: &m, Vertex: game.MoveToText(m.Pos, h.size)}, true)
}

func (h *Hub) Indicate(m game.Move) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publish(Event{Type: EventIndicate, Move: &m, Vertex: game.MoveToText(m.Pos, h.size)}, false)
}

func (h *Hub) Output(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publish(Event{Type: EventOutput, Line: line}, false)
}

// Toggle shows or hides the board on every client.
func (h *Hub) Toggle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.showing = !h.showing
	event := Event{Type: EventHide}
	if h.showing {
		event.Type = EventShow
	}
	h.publish(event, false)
}

// Moves returns the moves of the current game.
func (h *Hub) Moves() []game.Move {
	h.mu.Lock()
	defer h.mu.Unlock()
	var moves []game.Move
	for _, e := range h.history {
		if e.Type == EventUpdate && e.Move != nil {
			moves = append(moves, *e.Move)
		}
	}
	return moves
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// publish sends event to every client. Callers hold h.mu.
func (h *Hub) publish(event Event, keep bool) {
	if keep {
		h.history = append(h.history, event)
	}
	for conn := range h.conns {
		if err := writeEvent(conn, event); err != nil {
			h.log.Debugf("dropping board client %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func writeEvent(conn *websocket.Conn, event Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

// HandleWS upgrades the request and streams board events until the client
// goes away. Incoming messages are handed to onMessage.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, onMessage func(Event)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	replay := append([]Event{{Type: EventReset, Size: h.size}}, h.history...)
	if len(h.history) > 0 && h.history[0].Type == EventReset {
		replay = h.history
	}
	for _, event := range replay {
		if err := writeEvent(conn, event); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.log.Infof("board client connected: %s", conn.RemoteAddr())

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debugf("board client read error: %v", err)
			}
			return
		}
		if onMessage != nil {
			onMessage(event)
		}
	}
}
