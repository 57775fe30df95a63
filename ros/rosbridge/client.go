// Package rosbridge is a client for the rosbridge v2 JSON protocol over a websocket. It calls
// services, sends action goals with feedback, and publishes and subscribes to topics.
package rosbridge

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/utils"
)

// ErrClosed is returned for operations on, or still pending when closing, a closed client.
var ErrClosed = errors.New("rosbridge client closed")

// ServiceError is a service call or goal the server reported as failed.
type ServiceError struct {
	Name    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Name + ": " + e.Message
}

// ActionResult is the terminal message of a goal.
type ActionResult struct {
	Status action.Status
	Values json.RawMessage
	// Err is set when the server could not run the goal. It wraps action.ErrGoalRejected when
	// the goal was declined.
	Err error
}

// GoalHandler receives a goal's messages. Both callbacks run on the client's read goroutine, in
// arrival order, and must not block on the client.
type GoalHandler struct {
	OnFeedback func(values json.RawMessage)
	OnResult   func(result ActionResult)
}

type serviceReply struct {
	values json.RawMessage
	err    error
}

type goal struct {
	action  string
	handler GoalHandler
}

// Client is a connection to a rosbridge server.
type Client struct {
	conn   *websocket.Conn
	logger logging.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	closeErr   error
	calls      map[string]chan serviceReply
	goals      map[string]*goal
	subs       map[string]*Subscription
	advertised map[string]bool

	closeOnce sync.Once
	workers   *utils.StoppableWorkers
}

// Dial connects to the rosbridge server at url, e.g. "ws://localhost:9090".
func Dial(ctx context.Context, url string, logger logging.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		//nolint:errcheck
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dialing rosbridge at %s", url)
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established websocket connection and starts reading from it.
func NewClient(conn *websocket.Conn, logger logging.Logger) *Client {
	c := &Client{
		conn:       conn,
		logger:     logger,
		calls:      map[string]chan serviceReply{},
		goals:      map[string]*goal{},
		subs:       map[string]*Subscription{},
		advertised: map[string]bool{},
	}
	c.workers = utils.NewStoppableWorkers(c.readLoop)
	return c
}

// Close closes the connection. Pending calls fail with ErrClosed and pending goals are
// resolved with it.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.shutdown(ErrClosed)
		err = c.conn.Close()
		c.workers.Stop()
	})
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debugw("rosbridge connection ended", "error", err)
			}
			c.shutdown(errors.Wrap(ErrClosed, err.Error()))
			return
		}
		var in incoming
		if err := json.Unmarshal(data, &in); err != nil {
			c.logger.Warnw("dropping malformed rosbridge message", "error", err)
			continue
		}
		c.dispatch(&in)
	}
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = cause
	calls := c.calls
	goals := c.goals
	c.calls = map[string]chan serviceReply{}
	c.goals = map[string]*goal{}
	c.mu.Unlock()

	for _, ch := range calls {
		ch <- serviceReply{err: cause}
	}
	for _, g := range goals {
		if g.handler.OnResult != nil {
			g.handler.OnResult(ActionResult{Err: cause})
		}
	}
}

func (c *Client) dispatch(in *incoming) {
	switch in.Op {
	case opServiceResponse:
		c.mu.Lock()
		ch, ok := c.calls[in.ID]
		delete(c.calls, in.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debugw("service response for unknown call", "id", in.ID, "service", in.Service)
			return
		}
		if !in.succeeded() {
			ch <- serviceReply{err: &ServiceError{Name: in.Service, Message: in.failureMessage()}}
			return
		}
		ch <- serviceReply{values: in.Values}
	case opActionFeedback:
		c.mu.Lock()
		g, ok := c.goals[in.ID]
		c.mu.Unlock()
		if ok && g.handler.OnFeedback != nil {
			g.handler.OnFeedback(in.Values)
		}
	case opActionResult:
		c.mu.Lock()
		g, ok := c.goals[in.ID]
		delete(c.goals, in.ID)
		c.mu.Unlock()
		if !ok {
			return
		}
		result := ActionResult{Values: in.Values}
		if in.Status != nil {
			result.Status = action.Status(*in.Status)
		}
		if !in.succeeded() {
			msg := in.failureMessage()
			result.Err = &ServiceError{Name: g.action, Message: msg}
			if strings.Contains(strings.ToLower(msg), rejectedMarker) {
				result.Err = errors.Wrap(action.ErrGoalRejected, msg)
			}
		}
		if g.handler.OnResult != nil {
			g.handler.OnResult(result)
		}
	case opPublish:
		c.mu.Lock()
		subs := lo.Filter(lo.Values(c.subs), func(s *Subscription, _ int) bool { return s.topic == in.Topic })
		c.mu.Unlock()
		for _, s := range subs {
			s.callback(in.Msg)
		}
	case opStatus:
		c.logger.Debugw("rosbridge status", "level", in.Level, "id", in.ID, "values", string(in.Msg))
	default:
		c.logger.Debugw("ignoring rosbridge op", "op", in.Op)
	}
}

func (c *Client) write(ctx context.Context, msg interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) checkOpen() error {
	if c.closed {
		return c.closeErr
	}
	return nil
}

// CallService calls a service and decodes its response values into out, which may be nil.
func (c *Client) CallService(ctx context.Context, service, srvType string, args, out interface{}) error {
	id := uuid.NewString()
	reply := make(chan serviceReply, 1)

	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.calls[id] = reply
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
	}
	if args == nil {
		args = struct{}{}
	}
	if err := c.write(ctx, callServiceOp{Op: opCallService, ID: id, Service: service, Type: srvType, Args: args}); err != nil {
		forget()
		return errors.Wrapf(err, "calling %s", service)
	}

	select {
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case r := <-reply:
		if r.err != nil {
			return r.err
		}
		if out == nil {
			return nil
		}
		return errors.Wrapf(json.Unmarshal(r.values, out), "decoding %s response", service)
	}
}

// NewGoalID returns a fresh goal id for SendActionGoal.
func NewGoalID() string {
	return uuid.NewString()
}

// SendActionGoal sends a goal with feedback enabled under the caller-chosen id. The handler
// receives everything the server sends about the goal, possibly before SendActionGoal returns.
func (c *Client) SendActionGoal(
	ctx context.Context,
	id, actionName, actionType string,
	args interface{},
	handler GoalHandler,
) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	if _, ok := c.goals[id]; ok {
		c.mu.Unlock()
		return errors.Errorf("goal %s already in flight", id)
	}
	c.goals[id] = &goal{action: actionName, handler: handler}
	c.mu.Unlock()

	op := sendActionGoalOp{
		Op:         opSendActionGoal,
		ID:         id,
		Action:     actionName,
		ActionType: actionType,
		Args:       args,
		Feedback:   true,
	}
	if err := c.write(ctx, op); err != nil {
		c.mu.Lock()
		delete(c.goals, id)
		c.mu.Unlock()
		return errors.Wrapf(err, "sending goal to %s", actionName)
	}
	return nil
}

// CancelActionGoal asks the server to cancel a goal. The goal's handler still receives the
// final result.
func (c *Client) CancelActionGoal(ctx context.Context, actionName, id string) error {
	return c.write(ctx, cancelActionGoalOp{Op: opCancelActionGoal, ID: id, Action: actionName})
}

// Advertise announces a topic this client publishes on. Repeated calls are no-ops.
func (c *Client) Advertise(ctx context.Context, topic, msgType string) error {
	c.mu.Lock()
	if c.advertised[topic] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := c.write(ctx, advertiseOp{Op: opAdvertise, Topic: topic, Type: msgType}); err != nil {
		return errors.Wrapf(err, "advertising %s", topic)
	}
	c.mu.Lock()
	c.advertised[topic] = true
	c.mu.Unlock()
	return nil
}

// Publish sends msg on an advertised topic.
func (c *Client) Publish(ctx context.Context, topic string, msg interface{}) error {
	return errors.Wrapf(c.write(ctx, publishOp{Op: opPublish, Topic: topic, Msg: msg}), "publishing on %s", topic)
}

// Subscription is an active topic subscription.
type Subscription struct {
	client   *Client
	id       string
	topic    string
	callback func(json.RawMessage)
}

// Subscribe delivers every message on topic to callback until unsubscribed. The callback runs
// on the read goroutine.
func (c *Client) Subscribe(
	ctx context.Context,
	topic, msgType string,
	callback func(msg json.RawMessage),
) (*Subscription, error) {
	sub := &Subscription{client: c, id: uuid.NewString(), topic: topic, callback: callback}
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	if err := c.write(ctx, subscribeOp{Op: opSubscribe, ID: sub.id, Topic: topic, Type: msgType}); err != nil {
		c.mu.Lock()
		delete(c.subs, sub.id)
		c.mu.Unlock()
		return nil, errors.Wrapf(err, "subscribing to %s", topic)
	}
	return sub, nil
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe stops delivery. Messages already being dispatched may still arrive.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.client.mu.Lock()
	_, ok := s.client.subs[s.id]
	delete(s.client.subs, s.id)
	closed := s.client.closed
	s.client.mu.Unlock()
	if !ok || closed {
		return nil
	}
	return s.client.write(ctx, unsubscribeOp{Op: opUnsubscribe, ID: s.id, Topic: s.topic})
}

// ServiceAvailable reports whether the named service is currently advertised.
func (c *Client) ServiceAvailable(ctx context.Context, name string) (bool, error) {
	var resp servicesResponse
	if err := c.CallService(ctx, rosapiServices, rosapiServicesType, nil, &resp); err != nil {
		return false, err
	}
	return lo.Contains(resp.Services, name), nil
}

// ActionAvailable reports whether the named action server is currently up.
func (c *Client) ActionAvailable(ctx context.Context, name string) (bool, error) {
	var resp actionServersResponse
	if err := c.CallService(ctx, rosapiActions, rosapiActionsType, nil, &resp); err != nil {
		return false, err
	}
	return lo.Contains(resp.ActionServers, name), nil
}

// ResolveName turns a relative name into a fully qualified one under namespace. Names already
// starting with "/" are returned cleaned but otherwise unchanged.
func ResolveName(namespace, name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Join("/", namespace, name)
}
