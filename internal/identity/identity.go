// Package identity abstracts the operator sign-in provider.
package identity

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is the signed-in operator
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Provider signs operators in and out. Observe calls fn with the current
// identity straight away and again on every change, nil meaning signed out.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	Current() *Identity
	Observe(fn func(*Identity)) (cancel func())
}

// Observers tracks the current identity for a provider and fans changes out
type Observers struct {
	mu      sync.Mutex
	current *Identity
	nextID  int
	fns     map[int]func(*Identity)
}

func (o *Observers) Current() *Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Set replaces the current identity and notifies observers outside the lock
func (o *Observers) Set(id *Identity) {
	o.mu.Lock()
	o.current = id
	fns := make([]func(*Identity), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (o *Observers) Observe(fn func(*Identity)) func() {
	o.mu.Lock()
	if o.fns == nil {
		o.fns = make(map[int]func(*Identity))
	}
	o.nextID++
	id := o.nextID
	o.fns[id] = fn
	current := o.current
	o.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

// Static is an in-process provider over a fixed account table
type Static struct {
	Observers
	accounts map[string]staticAccount
}

type staticAccount struct {
	uid      string
	password string
}

// NewStatic creates a provider with no accounts
func NewStatic() *Static {
	return &Static{accounts: make(map[string]staticAccount)}
}

// Add registers an account
func (s *Static) Add(uid, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = staticAccount{uid: uid, password: password}
}

func (s *Static) SignIn(_ context.Context, email, password string) (*Identity, error) {
	s.mu.Lock()
	acct, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok || acct.password != password {
		return nil, ErrInvalidCredentials
	}
	id := &Identity{UID: acct.uid, Email: email}
	s.Set(id)
	return id, nil
}

func (s *Static) SignOut(context.Context) error {
	s.Set(nil)
	return nil
}
