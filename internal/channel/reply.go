package channel

import "sync"

// Result receives the outcome of one method call. Exactly one of its methods
// should be called; later calls are ignored.
type Result interface {
	Success(value any)
	Error(code, message string, details any)
	NotImplemented()
}

// MethodCallHandler handles calls arriving on a channel.
type MethodCallHandler interface {
	OnMethodCall(call *MethodCall, result Result)
}

// MethodCallHandlerFunc adapts a function to MethodCallHandler.
type MethodCallHandlerFunc func(call *MethodCall, result Result)

// OnMethodCall calls f(call, result).
func (f MethodCallHandlerFunc) OnMethodCall(call *MethodCall, result Result) {
	f(call, result)
}

// Reply status values.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusNotImplemented = "notImplemented"
)

// ReplyError is the error half of a Reply.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Reply is the recorded outcome of a call, also the transport envelope.
type Reply struct {
	Status string      `json:"status"`
	Result any         `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
}

// NotImplemented reports whether the call named an unknown method.
func (r Reply) NotImplemented() bool {
	return r.Status == StatusNotImplemented
}

// recorder is a Result that captures the first outcome.
type recorder struct {
	mu    sync.Mutex
	set   bool
	reply Reply
	done  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) finish(reply Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return
	}
	r.set = true
	r.reply = reply
	close(r.done)
}

func (r *recorder) Success(value any) {
	r.finish(Reply{Status: StatusSuccess, Result: value})
}

func (r *recorder) Error(code, message string, details any) {
	r.finish(Reply{Status: StatusError, Error: &ReplyError{Code: code, Message: message, Details: details}})
}

func (r *recorder) NotImplemented() {
	r.finish(Reply{Status: StatusNotImplemented})
}
