package adapter

import (
	"fmt"
	"sync"
)

// Completion is the outcome of one invocation.
type Completion struct {
	Status      int
	HeadersSent bool
	// Fallback is set when the static payload was served instead of the pipeline.
	Fallback bool
	// Err holds the recovered failure, if the pipeline panicked.
	Err error
}

// PendingInvocation is a one-shot completion token for a single request.
type PendingInvocation struct {
	done   chan struct{}
	once   sync.Once
	result Completion
}

func newPending() *PendingInvocation {
	return &PendingInvocation{done: make(chan struct{})}
}

func completed(c Completion) *PendingInvocation {
	p := newPending()
	p.finish(c)
	return p
}

func (p *PendingInvocation) finish(c Completion) {
	p.once.Do(func() {
		p.result = c
		close(p.done)
	})
}

// Done is closed once the response has been fully handed to the writer.
func (p *PendingInvocation) Done() <-chan struct{} {
	return p.done
}

// Result blocks until completion and returns the outcome.
func (p *PendingInvocation) Result() Completion {
	<-p.done
	return p.result
}

// InvocationError carries a value recovered at the adapter boundary.
type InvocationError struct {
	Value any
	Stack []byte
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("pipeline panicked: %v", e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *InvocationError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
