// Package confirm tracks short-lived acknowledgment prompts.
//
// A prompt starts Awaiting and moves exactly once, either to Confirmed when its
// owner presses the button or to Expired when its timer fires. Late or foreign
// presses are rejected without side effects.
package confirm

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	Awaiting State = iota
	Confirmed
	Expired
)

func (s State) String() string {
	switch s {
	case Awaiting:
		return "awaiting"
	case Confirmed:
		return "confirmed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// DefaultTTL is how long a prompt accepts a press.
const DefaultTTL = 60 * time.Second

const customIDPrefix = "confirm:"

// CustomID encodes a token as a component custom ID.
func CustomID(token string) string { return customIDPrefix + token }

// ParseCustomID extracts the token from a component custom ID.
func ParseCustomID(id string) (string, bool) {
	tok, ok := strings.CutPrefix(id, customIDPrefix)
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

type prompt struct {
	owner  string
	state  State
	timer  *time.Timer
	onDone func(State)
}

// Registry holds open prompts. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	prompts map[string]*prompt
}

func NewRegistry() *Registry {
	return &Registry{prompts: map[string]*prompt{}}
}

// Open registers a prompt owned by userID and returns its token. onDone runs
// once with the final state, outside the registry lock.
func (r *Registry) Open(userID string, ttl time.Duration, onDone func(State)) string {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok := uuid.NewString()
	p := &prompt{owner: userID, onDone: onDone}

	r.mu.Lock()
	r.prompts[tok] = p
	p.timer = time.AfterFunc(ttl, func() { r.expire(tok) })
	r.mu.Unlock()
	return tok
}

// Confirm moves the prompt to Confirmed when it is still awaiting and userID
// is its owner. It reports whether the transition happened.
func (r *Registry) Confirm(token, userID string) bool {
	done, ok := r.ConfirmDeferred(token, userID)
	done()
	return ok
}

// ConfirmDeferred is Confirm without running onDone. The caller runs the
// returned func, e.g. after answering the press. It is never nil.
func (r *Registry) ConfirmDeferred(token, userID string) (func(), bool) {
	p, ok := r.settle(token, Confirmed, userID)
	if !ok {
		return func() {}, false
	}
	return func() { p.done(Confirmed) }, true
}

// State returns the prompt's state; false when the token is unknown or settled.
func (r *Registry) State(token string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[token]
	if !ok {
		return 0, false
	}
	return p.state, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

// Close drops every open prompt without running callbacks.
func (r *Registry) Close() {
	r.mu.Lock()
	for tok, p := range r.prompts {
		p.timer.Stop()
		delete(r.prompts, tok)
	}
	r.mu.Unlock()
}

func (r *Registry) expire(token string) {
	if p, ok := r.settle(token, Expired, ""); ok {
		p.done(Expired)
	}
}

// settle performs the single state transition under the lock.
func (r *Registry) settle(token string, to State, userID string) (*prompt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[token]
	if !ok || p.state != Awaiting {
		return nil, false
	}
	if to == Confirmed && p.owner != "" && p.owner != userID {
		return nil, false
	}
	p.state = to
	p.timer.Stop()
	delete(r.prompts, token)
	return p, true
}

func (p *prompt) done(st State) {
	if p.onDone != nil {
		p.onDone(st)
	}
}
