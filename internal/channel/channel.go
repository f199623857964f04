package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNoHandler = errors.New("no method call handler")

// Event is one outbound notification.
type Event struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Method    string `json:"method"`
	Arguments any    `json:"arguments"`
}

// Sink delivers outbound events to whoever listens on the channel.
type Sink interface {
	Publish(ev Event)
}

// Invoker sends outbound notifications.
type Invoker interface {
	InvokeMethod(method string, arguments any)
}

// MethodChannel is a named, bidirectional channel. Incoming calls are
// dispatched one at a time; outbound notifications go to the sink.
type MethodChannel struct {
	name    string
	sink    Sink
	handler MethodCallHandler
	queue   chan struct{}
	log     logrus.FieldLogger
}

// New creates a channel called name publishing to sink.
func New(name string, sink Sink, log logrus.FieldLogger) *MethodChannel {
	return &MethodChannel{
		name:  name,
		sink:  sink,
		queue: make(chan struct{}, 1),
		log:   log.WithFields(logrus.Fields{"component": "channel", "channel": name}),
	}
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// SetMethodCallHandler installs h. A nil handler detaches the channel; calls
// then fail with ErrNoHandler.
func (c *MethodChannel) SetMethodCallHandler(h MethodCallHandler) {
	c.queue <- struct{}{}
	c.handler = h
	<-c.queue
}

// Handle runs call through the handler and waits for its reply. Dispatch is
// serialized: the next call is handed to the handler once the previous
// handler has returned. A handler may reply later from another goroutine.
func (c *MethodChannel) Handle(ctx context.Context, call *MethodCall) (Reply, error) {
	select {
	case c.queue <- struct{}{}:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	handler := c.handler
	if handler == nil {
		<-c.queue
		return Reply{}, ErrNoHandler
	}

	rec := newRecorder()
	c.log.WithField("method", call.Method).Debug("method call")
	handler.OnMethodCall(call, rec)
	<-c.queue

	// a reply recorded before the deadline wins over ctx
	select {
	case <-rec.done:
		return rec.reply, nil
	default:
	}
	select {
	case <-rec.done:
		return rec.reply, nil
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("waiting for %s reply: %w", call.Method, ctx.Err())
	}
}

// InvokeMethod publishes a notification. It never blocks on listeners.
func (c *MethodChannel) InvokeMethod(method string, arguments any) {
	ev := Event{
		ID:        uuid.NewString(),
		Channel:   c.name,
		Method:    method,
		Arguments: arguments,
	}
	c.log.WithFields(logrus.Fields{"method": method, "id": ev.ID}).Debug("invoke method")
	if c.sink != nil {
		c.sink.Publish(ev)
	}
}
