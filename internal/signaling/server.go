package signaling

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Server relays signaling messages between registered clients by ID.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*peerConn
}

type peerConn struct {
	id   string
	kind string
	name string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peerConn) send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(msg)
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*peerConn),
	}
}

// ServeHTTP upgrades the request and serves one client until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("signal: upgrade: %v", err)
		return
	}
	defer conn.Close()

	var self *peerConn
	defer func() {
		if self != nil {
			s.remove(self)
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if self != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("signal: %s read: %v", self.id, err)
			}
			return
		}

		if self == nil {
			if msg.Type != TypeRegister {
				conn.WriteJSON(Message{Type: TypeError, Msg: "register first"})
				continue
			}
			self = s.register(conn, msg)
			continue
		}
		s.handle(self, msg)
	}
}

func (s *Server) register(conn *websocket.Conn, msg Message) *peerConn {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	kind := msg.ClientType
	if kind != ClientTypeHost {
		kind = ClientTypeViewer
	}
	p := &peerConn{id: id, kind: kind, name: msg.Name, conn: conn}

	s.mu.Lock()
	old := s.clients[id]
	s.clients[id] = p
	s.mu.Unlock()
	if old != nil {
		// same ID reconnected; drop the stale socket
		old.conn.Close()
	}

	log.Printf("signal: %s registered as %s", id, kind)
	p.send(Message{Type: TypeRegistered, ID: id})
	if kind == ClientTypeHost {
		s.broadcastHosts()
	}
	return p
}

func (s *Server) handle(from *peerConn, msg Message) {
	switch msg.Type {
	case TypePing:
		from.send(Message{Type: TypePong, Timestamp: time.Now().UnixMilli()})
	case TypeListHosts:
		from.send(Message{Type: TypeHosts, List: s.hosts()})
	case TypeOffer, TypeAnswer, TypeICECandidate:
		s.mu.Lock()
		to := s.clients[msg.Target]
		s.mu.Unlock()
		if to == nil {
			from.send(Message{Type: TypeError, Msg: "unknown target " + msg.Target})
			return
		}
		msg.From = from.id
		msg.Target = ""
		if err := to.send(msg); err != nil {
			log.Printf("signal: relay %s to %s: %v", msg.Type, to.id, err)
		}
	default:
		from.send(Message{Type: TypeError, Msg: "unknown message type " + msg.Type})
	}
}

func (s *Server) remove(p *peerConn) {
	s.mu.Lock()
	if s.clients[p.id] != p {
		s.mu.Unlock()
		return
	}
	delete(s.clients, p.id)
	s.mu.Unlock()
	log.Printf("signal: %s left", p.id)

	if p.kind == ClientTypeHost {
		for _, v := range s.viewers() {
			v.send(Message{Type: TypeHostDisconnected, HostID: p.id})
		}
		s.broadcastHosts()
	}
}

func (s *Server) hosts() []HostInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]HostInfo, 0, len(s.clients))
	for _, c := range s.clients {
		if c.kind == ClientTypeHost {
			list = append(list, HostInfo{ID: c.id, Name: c.name, Online: true})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *Server) viewers() []*peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*peerConn
	for _, c := range s.clients {
		if c.kind == ClientTypeViewer {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) broadcastHosts() {
	msg := Message{Type: TypeHostsUpdated, List: s.hosts()}
	for _, v := range s.viewers() {
		v.send(msg)
	}
}
