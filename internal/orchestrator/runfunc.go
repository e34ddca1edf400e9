package orchestrator

import "context"

// genericHandle adapts a plain function into a Handle: it has no pause
// support and treats cancellation as purely cooperative (the function is
// expected to select on deps.Cancel itself).
type genericHandle struct {
	done chan struct{}
	err  error
}

func (h *genericHandle) Pause(ctx context.Context) error  { return ErrOperationNotSupported }
func (h *genericHandle) Resume(ctx context.Context) error { return ErrOperationNotSupported }
func (h *genericHandle) Cancel(ctx context.Context) error { return nil }
func (h *genericHandle) Done() <-chan struct{}            { return h.done }
func (h *genericHandle) Err() error                       { return h.err }

// RunFunc adapts a plain run function into a ConstructorFunc for background
// task types that need nothing beyond a goroutine, a cancel signal, and a
// progress sink — e.g. the recurring maintenance tasks internal/scheduler
// submits. fn must return promptly after deps.Cancel is closed.
func RunFunc(fn func(ctx context.Context, deps TaskDeps) error) ConstructorFunc {
	return func(ctx context.Context, deps TaskDeps) (Handle, error) {
		h := &genericHandle{done: make(chan struct{})}
		go func() {
			defer close(h.done)
			h.err = fn(ctx, deps)
		}()
		return h, nil
	}
}
