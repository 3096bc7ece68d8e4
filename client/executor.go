package client

import (
	"sync"

	"go.uber.org/zap"
)

// Executor runs completion handlers.
type Executor interface {
	Submit(fn func())
}

// InlineExecutor runs handlers on the goroutine that completes the command.
// A handler that blocks stalls every command behind it.
type InlineExecutor struct{}

func (InlineExecutor) Submit(fn func()) {
	fn()
}

// SerialExecutor runs handlers one at a time, in submission order, on its own
// goroutine. Submit never blocks.
type SerialExecutor struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	exited bool

	wake chan struct{}
	log  *zap.Logger
}

func NewSerialExecutor(log *zap.Logger) *SerialExecutor {
	if log == nil {
		log = zap.NewNop()
	}

	e := &SerialExecutor{
		wake: make(chan struct{}, 1),
		log:  log,
	}

	go e.loop()

	return e
}

func (e *SerialExecutor) Submit(fn func()) {
	e.mu.Lock()
	if e.exited {
		e.mu.Unlock()
		e.run(fn)
		return
	}

	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	e.notify()
}

// Close lets the queued handlers finish and then stops the goroutine.
// Handlers submitted after that run inline.
func (e *SerialExecutor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.notify()

	return nil
}

func (e *SerialExecutor) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *SerialExecutor) loop() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			if e.closed {
				e.exited = true
				e.mu.Unlock()
				return
			}

			e.mu.Unlock()
			<-e.wake
			continue
		}

		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(fn)
	}
}

func (e *SerialExecutor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Completion handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	fn()
}
