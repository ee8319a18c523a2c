// Package store persists the relay's users, messages and car listings.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/models"
)

// ErrNotFound is returned when a looked-up user or car does not exist.
var ErrNotFound = errors.New("not found")

// SearchLimit caps user search results.
const SearchLimit = 10

// Store is the relay persistence.
type Store interface {
	CreateUser(ctx context.Context, u models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	// SearchUsers matches query case-insensitively against usernames and emails.
	SearchUsers(ctx context.Context, query string) ([]models.User, error)

	// SaveMessage assigns the message an ID and stores it.
	SaveMessage(ctx context.Context, m models.Message) (models.Message, error)
	// Conversation returns every message between a and b, oldest first.
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)

	CreateCar(ctx context.Context, c models.Car) (models.Car, error)
	Car(ctx context.Context, id int64) (models.Car, error)
	Cars(ctx context.Context) ([]models.Car, error)
	SearchCars(ctx context.Context, f models.CarFilter) ([]models.Car, error)
	CarsByOwner(ctx context.Context, email string) ([]models.Car, error)

	Close() error
}

// Seed loads the configured users and cars. Users that already exist are left alone;
// cars are only added when the store has none.
func Seed(ctx context.Context, s Store, seed config.Seed) error {
	for _, u := range seed.Users {
		if _, err := s.UserByEmail(ctx, u.Email); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.CreateUser(ctx, models.User{Email: u.Email, Username: u.Username}); err != nil {
			return err
		}
	}
	if len(seed.Cars) == 0 {
		return nil
	}
	existing, err := s.Cars(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, c := range seed.Cars {
		car := models.Car{
			Name:        c.Name,
			PricePerDay: c.PricePerDay,
			Location:    c.Location,
			Category:    c.CarType,
			Description: c.Description,
			OwnerEmail:  c.OwnerEmail,
		}
		if c.ImageURL != "" {
			img := c.ImageURL
			car.ImageURL = &img
		}
		if _, err := s.CreateCar(ctx, car); err != nil {
			return err
		}
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func matches(c models.Car, f models.CarFilter) bool {
	if f.Location != "" && !containsFold(c.Location, f.Location) {
		return false
	}
	if f.CarType != "" && !containsFold(c.Category, f.CarType) {
		return false
	}
	if f.MaxPrice > 0 && c.PricePerDay > f.MaxPrice {
		return false
	}
	return true
}
