package users

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Age      int       `json:"age"`
	Hobbies  []string  `json:"hobbies"`
}

func (u User) clone() User {
	u.Hobbies = slices.Clone(u.Hobbies)
	return u
}

// Store keeps users in insertion order. Values handed out are copies.
type Store struct {
	mutex sync.RWMutex
	users []User
}

func NewStore() *Store {
	return &Store{users: []User{}}
}

func (s *Store) List() []User {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.clone())
	}
	return users
}

func (s *Store) Get(id uuid.UUID) (User, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if i := s.index(id); i >= 0 {
		return s.users[i].clone(), true
	}
	return User{}, false
}

func (s *Store) Add(u User) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.users = append(s.users, u.clone())
}

// Update replaces the user with the same id. It reports false when there is
// no such user.
func (s *Store) Update(u User) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.index(u.ID)
	if i < 0 {
		return false
	}
	s.users[i] = u.clone()
	return true
}

func (s *Store) Delete(id uuid.UUID) (User, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.index(id)
	if i < 0 {
		return User{}, false
	}
	deleted := s.users[i]
	s.users = slices.Delete(s.users, i, i+1)
	return deleted, true
}

func (s *Store) index(id uuid.UUID) int {
	return slices.IndexFunc(s.users, func(u User) bool { return u.ID == id })
}
