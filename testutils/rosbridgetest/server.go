// Package rosbridgetest provides an in-process rosbridge server for tests.
package rosbridgetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// ServiceHandler answers a service call. Returning ok=false makes the call fail with values as
// the error message.
type ServiceHandler func(args json.RawMessage) (values interface{}, ok bool)

// ActionHandler runs a goal. It is called on the connection's goroutine and should report
// through goal before returning, or hand goal to another goroutine.
type ActionHandler func(args json.RawMessage, goal *Goal)

// Goal lets an ActionHandler talk back to the client.
type Goal struct {
	conn   *conn
	id     string
	action string
}

// ID returns the client-chosen goal id.
func (g *Goal) ID() string {
	return g.id
}

// Feedback sends one feedback message.
func (g *Goal) Feedback(values interface{}) {
	g.conn.send(map[string]interface{}{"op": "action_feedback", "id": g.id, "action": g.action, "values": values})
}

// Result sends the terminal message. ok=false marks the goal failed, e.g. rejected.
func (g *Goal) Result(status int8, values interface{}, ok bool) {
	g.conn.send(map[string]interface{}{
		"op": "action_result", "id": g.id, "action": g.action,
		"status": status, "values": values, "result": ok,
	})
}

// Reject fails the goal the way rosbridge reports a declined goal.
func (g *Goal) Reject() {
	g.Result(0, "Action goal was rejected", false)
}

// Server is a fake rosbridge endpoint.
type Server struct {
	t   testing.TB
	srv *httptest.Server

	mu        sync.Mutex
	services  map[string]ServiceHandler
	actions   map[string]ActionHandler
	onPublish map[string]func(msg json.RawMessage)
	published map[string][]json.RawMessage
	conns     map[*conn]struct{}
	canceled  []string
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]string
}

func (c *conn) send(msg interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	//nolint:errcheck
	c.ws.WriteJSON(msg)
}

// NewServer starts a server. It is closed when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		t:         tb,
		services:  map[string]ServiceHandler{},
		actions:   map[string]ActionHandler{},
		onPublish: map[string]func(json.RawMessage){},
		published: map[string][]json.RawMessage{},
		conns:     map[*conn]struct{}{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	tb.Cleanup(s.Close)
	return s
}

// URL returns the websocket URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close disconnects every client and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.conns {
		//nolint:errcheck
		c.ws.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}

// HandleService registers a service. It is listed by /rosapi/services.
func (s *Server) HandleService(name string, handler ServiceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[name] = handler
}

// HandleAction registers an action server. It is listed by /rosapi/action_servers.
func (s *Server) HandleAction(name string, handler ActionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[name] = handler
}

// OnPublish registers a hook for messages clients publish on topic.
func (s *Server) OnPublish(topic string, hook func(msg json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish[topic] = hook
}

// Published returns every message clients published on topic.
func (s *Server) Published(topic string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.published[topic]...)
}

// Canceled returns the ids of goals clients asked to cancel.
func (s *Server) Canceled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.canceled...)
}

// Publish sends msg to every client subscribed to topic.
func (s *Server) Publish(topic string, msg interface{}) {
	s.mu.Lock()
	var targets []*conn
	for c := range s.conns {
		if _, ok := c.subs[topic]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.send(map[string]interface{}{"op": "publish", "topic": topic, "msg": msg})
	}
}

// Subscribed reports whether any client is subscribed to topic.
func (s *Server) Subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if _, ok := c.subs[topic]; ok {
			return true
		}
	}
	return false
}

type request struct {
	Op      string          `json:"op"`
	ID      string          `json:"id"`
	Service string          `json:"service"`
	Action  string          `json:"action"`
	Topic   string          `json:"topic"`
	Args    json.RawMessage `json:"args"`
	Msg     json.RawMessage `json:"msg"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws, subs: map[string]string{}}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		//nolint:errcheck
		ws.Close()
	}()

	for {
		var req request
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		s.handle(c, &req)
	}
}

func (s *Server) handle(c *conn, req *request) {
	switch req.Op {
	case "call_service":
		values, ok := s.callService(req)
		c.send(map[string]interface{}{
			"op": "service_response", "id": req.ID, "service": req.Service, "values": values, "result": ok,
		})
	case "send_action_goal":
		s.mu.Lock()
		handler, ok := s.actions[req.Action]
		s.mu.Unlock()
		goal := &Goal{conn: c, id: req.ID, action: req.Action}
		if !ok {
			goal.Result(0, "Action server "+req.Action+" is not available", false)
			return
		}
		handler(req.Args, goal)
	case "cancel_action_goal":
		s.mu.Lock()
		s.canceled = append(s.canceled, req.ID)
		s.mu.Unlock()
	case "subscribe":
		s.mu.Lock()
		c.subs[req.Topic] = req.ID
		s.mu.Unlock()
	case "unsubscribe":
		s.mu.Lock()
		delete(c.subs, req.Topic)
		s.mu.Unlock()
	case "publish":
		s.mu.Lock()
		s.published[req.Topic] = append(s.published[req.Topic], req.Msg)
		hook := s.onPublish[req.Topic]
		s.mu.Unlock()
		if hook != nil {
			hook(req.Msg)
		}
	}
}

func (s *Server) callService(req *request) (interface{}, bool) {
	s.mu.Lock()
	services := sortedKeys(s.services)
	actions := sortedKeys(s.actions)
	handler, ok := s.services[req.Service]
	s.mu.Unlock()

	switch {
	case req.Service == "/rosapi/services":
		return map[string]interface{}{"services": services}, true
	case req.Service == "/rosapi/action_servers":
		return map[string]interface{}{"action_servers": actions}, true
	case !ok:
		return "Service " + req.Service + " does not exist", false
	}
	return handler(req.Args)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
