package backoffice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is the session lifecycle state.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// User is the signed-in identity as reported by the server.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Has reports whether the user holds perm.
func (u User) Has(perm string) bool {
	return slices.Contains(u.Permissions, perm)
}

// MeFetcher asks the server who a token belongs to.
type MeFetcher interface {
	FetchMe(ctx context.Context, token string) (User, error)
}

// Session holds the client's authentication state. It is safe for concurrent use.
type Session struct {
	store TokenStore

	mu        sync.Mutex
	state     State
	token     string
	user      *User
	listeners map[int]func(State)
	nextID    int
}

// NewSession returns a Loading session backed by store.
func NewSession(store TokenStore) *Session {
	if store == nil {
		store = &MemoryTokenStore{}
	}
	return &Session{store: store, state: StateLoading, listeners: make(map[int]func(State))}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the signed-in user.
func (s *Session) User() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Token returns the in-memory token, "" unless Authenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// OnChange registers fn to run after every state transition. The returned
// func removes it. Listeners run outside the session lock.
func (s *Session) OnChange(fn func(State)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// RestoreSession resolves the Loading state from the persisted token.
//
// No token: Unauthenticated. Server accepts it: Authenticated. Server answers
// 401: the token is discarded. Any other failure leaves the token persisted
// for the next run, settles on Unauthenticated and returns the error.
func (s *Session) RestoreSession(ctx context.Context, me MeFetcher) error {
	tok, err := s.store.Load()
	if err != nil {
		s.transition(StateUnauthenticated, "", nil)
		return err
	}
	if tok == "" {
		s.transition(StateUnauthenticated, "", nil)
		return nil
	}

	u, err := me.FetchMe(ctx, tok)
	switch {
	case err == nil:
		s.transition(StateAuthenticated, tok, &u)
		return nil
	case IsUnauthenticated(err):
		s.transition(StateUnauthenticated, "", nil)
		if cerr := s.store.Clear(); cerr != nil {
			return cerr
		}
		return nil
	default:
		s.transition(StateUnauthenticated, "", nil)
		return err
	}
}

// Login persists token and enters Authenticated with u.
func (s *Session) Login(token string, u User) error {
	if token == "" {
		return errors.New("backoffice: empty token")
	}
	s.mu.Lock()
	if err := s.store.Save(token); err != nil {
		s.mu.Unlock()
		return err
	}
	fns := s.setLocked(StateAuthenticated, token, &u)
	s.mu.Unlock()

	notify(fns, StateAuthenticated)
	return nil
}

// Logout forgets the identity and removes the persisted token. The state
// change happens even when removal fails; the error is returned.
func (s *Session) Logout() error {
	s.mu.Lock()
	err := s.store.Clear()
	fns := s.setLocked(StateUnauthenticated, "", nil)
	s.mu.Unlock()

	notify(fns, StateUnauthenticated)
	return err
}

// HandleUnauthenticated is called by the transport when the server rejects
// the token it sent. It ends the session only if rejected is still the
// session's token, so a late 401 for a token that was since replaced is
// ignored. The state changes even when removing the persisted token fails;
// that error is returned.
func (s *Session) HandleUnauthenticated(rejected string) error {
	s.mu.Lock()
	if s.state != StateAuthenticated || rejected == "" || s.token != rejected {
		s.mu.Unlock()
		return nil
	}
	err := s.store.Clear()
	fns := s.setLocked(StateUnauthenticated, "", nil)
	s.mu.Unlock()

	notify(fns, StateUnauthenticated)
	return err
}

func (s *Session) transition(to State, token string, u *User) {
	s.mu.Lock()
	fns := s.setLocked(to, token, u)
	s.mu.Unlock()
	notify(fns, to)
}

func (s *Session) setLocked(to State, token string, u *User) []func(State) {
	s.state = to
	s.token = token
	s.user = u
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), to State) {
	for _, fn := range fns {
		fn(to)
	}
}
