package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/karthikraju391/rentchat/models"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	users    []models.User
	messages []models.Message
	cars     []models.Car
	nextMsg  int64
	nextCar  int64
	now      func() time.Time
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) CreateUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Email == u.Email || x.Username == u.Username {
			return fmt.Errorf("user %s already exists", u.Email)
		}
	}
	m.users = append(m.users, u)
	return nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (m *Memory) UserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
}

func (m *Memory) SearchUsers(_ context.Context, query string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.User
	for _, u := range m.users {
		if containsFold(u.Username, query) || containsFold(u.Email, query) {
			out = append(out, u)
			if len(out) == SearchLimit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) SaveMessage(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsg++
	msg.ID = models.MessageID(strconv.FormatInt(m.nextMsg, 10))
	if msg.Timestamp.IsZero() {
		msg.Timestamp = models.NewTimestamp(m.now())
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *Memory) Conversation(_ context.Context, a, b string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.Involves(a, b) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp.Time) })
	return out, nil
}

func (m *Memory) CreateCar(_ context.Context, c models.Car) (models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCar++
	c.ID = m.nextCar
	m.cars = append(m.cars, c)
	return c, nil
}

func (m *Memory) Car(_ context.Context, id int64) (models.Car, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cars {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Car{}, fmt.Errorf("car %d: %w", id, ErrNotFound)
}

func (m *Memory) Cars(ctx context.Context) ([]models.Car, error) {
	return m.filter(func(models.Car) bool { return true }), nil
}

func (m *Memory) SearchCars(_ context.Context, f models.CarFilter) ([]models.Car, error) {
	return m.filter(func(c models.Car) bool { return matches(c, f) }), nil
}

func (m *Memory) CarsByOwner(_ context.Context, email string) ([]models.Car, error) {
	return m.filter(func(c models.Car) bool { return c.OwnerEmail == email }), nil
}

func (m *Memory) filter(keep func(models.Car) bool) []models.Car {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Car
	for _, c := range m.cars {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) Close() error { return nil }
