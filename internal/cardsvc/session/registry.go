// Package session tracks the clients currently connected through the socket
// gateway. A Registry is owned by the coordinating loop and is not safe for
// use from other goroutines.
package session

import (
	"sort"
	"strings"
)

type Session struct {
	Name     string
	UserID   string
	SocketID string

	permissions map[string]bool
}

func New(name, userID, socketID string, permissions []string) *Session {
	s := &Session{
		Name:        name,
		UserID:      userID,
		SocketID:    socketID,
		permissions: make(map[string]bool, len(permissions)),
	}
	for _, p := range permissions {
		s.permissions[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return s
}

// HasPermission reports whether perm, or "*", was granted.
func (s *Session) HasPermission(perm string) bool {
	return s.permissions["*"] || s.permissions[strings.ToLower(perm)]
}

type Registry struct {
	byName   map[string]*Session
	bySocket map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		byName:   map[string]*Session{},
		bySocket: map[string]*Session{},
	}
}

// Register adds s. A session already registered under the same name or
// socket is replaced.
func (r *Registry) Register(s *Session) {
	if old, ok := r.bySocket[s.SocketID]; ok {
		r.remove(old)
	}
	if old, ok := r.byName[key(s.Name)]; ok {
		r.remove(old)
	}
	r.byName[key(s.Name)] = s
	r.bySocket[s.SocketID] = s
}

// Remove drops the session bound to socketID.
func (r *Registry) Remove(socketID string) (*Session, bool) {
	s, ok := r.bySocket[socketID]
	if !ok {
		return nil, false
	}
	r.remove(s)
	return s, true
}

func (r *Registry) remove(s *Session) {
	delete(r.bySocket, s.SocketID)
	if cur, ok := r.byName[key(s.Name)]; ok && cur == s {
		delete(r.byName, key(s.Name))
	}
}

// Lookup finds an online user by name, ignoring case.
func (r *Registry) Lookup(name string) (*Session, bool) {
	s, ok := r.byName[key(name)]
	return s, ok
}

func (r *Registry) BySocket(socketID string) (*Session, bool) {
	s, ok := r.bySocket[socketID]
	return s, ok
}

// Names lists online user names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, s := range r.byName {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.bySocket)
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
