package executor

import (
	"github.com/aescanero/taskdag/pkg/domain"
	"go.uber.org/zap"
)

// Listener observes task state transitions. Listeners must not assume any
// ordering between events of unrelated tasks.
type Listener func(event domain.TaskEvent)

// OnEvent registers a listener and returns a handle for OffEvent.
func (e *Executor) OnEvent(listener Listener) int {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	id := e.nextListener
	e.nextListener++
	e.listeners[id] = listener
	return id
}

// OffEvent removes the listener registered under the given handle.
func (e *Executor) OffEvent(id int) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	delete(e.listeners, id)
}

// Broadcast delivers a transition produced outside the executor, such as a
// synthetic skip recorded by the orchestrator, to every registered listener.
func (e *Executor) Broadcast(event domain.TaskEvent) {
	e.notify(event)
}

// notify broadcasts an event to every registered listener. Each call is
// isolated: a panicking listener never aborts dispatch to the others and
// never affects task execution.
func (e *Executor) notify(event domain.TaskEvent) {
	e.listenerMu.Lock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.listenerMu.Unlock()

	for _, listener := range listeners {
		e.dispatch(listener, event)
	}
}

func (e *Executor) dispatch(listener Listener, event domain.TaskEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("event listener panicked",
				zap.String("task_id", event.TaskID),
				zap.String("status", string(event.Status)),
				zap.Any("panic", r))
		}
	}()
	listener(event)
}
