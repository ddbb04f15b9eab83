package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/kurek775/saladin/internal/reqctx"
)

// Stub is a fake Provider for tests: it returns queued responses in order,
// or derives one from the handler function when set. Engine tests use this
// instead of hitting a real provider.
type Stub struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	calls     []Request
	Handler   func(Request) (*Response, error)
}

// NewStub builds an empty Stub. Use Enqueue to script responses, or set
// Handler for request-dependent behavior.
func NewStub() *Stub {
	return &Stub{}
}

// Enqueue appends a canned successful response, returned in FIFO order.
func (s *Stub) Enqueue(content string) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, &Response{Content: TextContent(content)})
	return s
}

// EnqueueError appends a canned error, returned in FIFO order ahead of any
// queued responses at that position.
func (s *Stub) EnqueueError(err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	return s
}

// Calls returns every request the stub has received, for assertions.
func (s *Stub) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Stub) ChatCompletion(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)

	if s.Handler != nil {
		handler := s.Handler
		s.mu.Unlock()
		return handler(req)
	}

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.responses) > 0 {
		resp := s.responses[0]
		s.responses = s.responses[1:]
		s.mu.Unlock()
		return resp, nil
	}
	s.mu.Unlock()
	return nil, fmt.Errorf("llm: stub has no queued response for %s/%s", req.Provider, req.Model)
}

// WithKeys satisfies KeyedProvider by ignoring BYOK credentials and always
// returning the same stub, matching tests that don't exercise credential
// resolution.
func (s *Stub) WithKeys(reqctx.Keys) Provider {
	return s
}
