package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	blog "github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/positioner"
	"github.com/beamctl/beamctl-go/pkg/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AxisStatus is the JSON shape of one axis in the status document.
type AxisStatus struct {
	Position float64  `json:"position"`
	Moving   bool     `json:"moving"`
	Target   *float64 `json:"target,omitempty"`
	EGU      string   `json:"egu,omitempty"`
	Low      float64  `json:"low"`
	High     float64  `json:"high"`
}

// Status maps axis name to its current state.
type Status map[string]AxisStatus

// Command is an inbound websocket control message.
type Command struct {
	Command string  `json:"command"`
	Axis    string  `json:"axis"`
	Target  float64 `json:"target"`
}

// Server fans the registry's state out to HTTP and websocket clients and
// applies inbound move and stop commands.
type Server struct {
	reg   *registry.Registry
	evlog blog.Logger

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
}

// NewServer builds a Server over reg. Websocket connection lifecycle is
// recorded through evlog; nil disables that.
func NewServer(reg *registry.Registry, evlog blog.Logger) *Server {
	if evlog == nil {
		evlog = blog.NoopLogger{}
	}
	s := &Server{reg: reg, evlog: evlog, status: Status{}}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

// logConn records a websocket connection state transition. The client ID
// and peer address go into the reason field.
func (s *Server) logConn(state, reason string) {
	s.evlog.Log(blog.Event{
		Timestamp: time.Now(),
		Category:  blog.CategoryState,
		StateChange: &blog.StateChangeEvent{
			Entity:   blog.StateEntityConnection,
			NewState: state,
			Reason:   reason,
		},
	})
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/positioners", s.PositionersHandler).Methods("GET")
	r.HandleFunc("/api/status", s.StatusHandler).Methods("GET")
	r.HandleFunc("/api/status/{name}", s.AxisStatusHandler).Methods("GET")
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	return r
}

// Watch polls the registry and broadcasts to websocket writers whenever
// the status document changes.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Wake up writer loops so they notice their contexts.
			s.statusCond.Broadcast()
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	next := Status{}
	s.reg.Range(func(ax registry.Axis) bool {
		st := AxisStatus{
			Position: ax.Position(),
			Moving:   ax.Moving(),
			EGU:      ax.EGU(),
		}
		if target, ok := ax.Target(); ok {
			st.Target = &target
		}
		limits := ax.Limits()
		st.Low, st.High = limits.Low, limits.High
		next[ax.Name()] = st
		return true
	})

	s.statusMu.Lock()
	changed := !reflect.DeepEqual(s.status, next)
	if changed {
		s.status = next
	}
	s.statusMu.Unlock()
	if changed {
		s.statusCond.Broadcast()
	}
}

func (s *Server) snapshot() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Server) PositionersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.reg.Names())
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *Server) AxisStatusHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	st, ok := s.snapshot()[name]
	if !ok {
		http.Error(w, "unknown axis", http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	connID := uuid.New()
	log.Printf("ws client %s connected from %s", connID, r.RemoteAddr)
	s.logConn("connected", connID.String()+" "+r.RemoteAddr)
	defer s.logConn("disconnected", connID.String())

	// Read and apply incoming commands.
	go func() {
		defer cancel()
		defer conn.Close()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.apply(ctx, msg); err != nil {
				log.Printf("ws client %s: %s %s: %v", connID, msg.Command, msg.Axis, err)
			}
		}
	}()

	send := func(status Status) bool {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return false
		}
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	if !send(s.snapshot()) {
		return
	}

	for {
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
		s.statusMu.RUnlock()

		select {
		case <-ctx.Done():
			log.Printf("ws client %s disconnected", connID)
			return
		default:
		}
		if !send(status) {
			return
		}
	}
}

func (s *Server) apply(ctx context.Context, msg Command) error {
	switch msg.Command {
	case "stop_all":
		return s.reg.StopAll()
	case "move":
		ax, err := s.reg.Get(msg.Axis)
		if err != nil {
			return err
		}
		_, err = ax.Move(ctx, msg.Target, positioner.MoveOptions{})
		return err
	case "stop":
		ax, err := s.reg.Get(msg.Axis)
		if err != nil {
			return err
		}
		return ax.Stop()
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Print(err)
	}
}
