package models

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Car is a catalog entry as consumed by the listing screens. After normalization
// every field holds a value of its declared type; only ImageURL may be nil.
type Car struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	PricePerDay float64 `json:"price_per_day"`
	Location    string  `json:"location"`
	Category    string  `json:"car_type"`
	Description string  `json:"description"`
	OwnerEmail  string  `json:"owner_email"`
	ImageURL    *string `json:"image_url"`

	// Placeholder is set on the synthesized row shown when a response carried no records.
	Placeholder bool `json:"-"`
}

// CarFilter holds the catalog search parameters. Zero values are ignored.
type CarFilter struct {
	Location string
	CarType  string
	MaxPrice float64
}

// Empty reports whether no filter criterion is set.
func (f CarFilter) Empty() bool {
	return f.Location == "" && f.CarType == "" && f.MaxPrice <= 0
}

// PriceOrder selects how listings are ordered by daily price.
type PriceOrder string

const (
	PriceUnsorted  PriceOrder = ""
	PriceAscending PriceOrder = "asc"
	PriceDescend   PriceOrder = "desc"
)

// ParsePriceOrder accepts "", "asc" and "desc", case-insensitively.
func ParsePriceOrder(s string) (PriceOrder, error) {
	switch o := PriceOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case PriceUnsorted, PriceAscending, PriceDescend:
		return o, nil
	default:
		return "", fmt.Errorf("unknown price order %q (want asc or desc)", s)
	}
}

// MatchCars keeps the cars whose name or description contains term,
// case-insensitively. A blank term keeps everything. The input is not modified.
func MatchCars(cars []Car, term string) []Car {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]Car, 0, len(cars))
	for _, c := range cars {
		if term == "" ||
			strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(strings.ToLower(c.Description), term) {
			out = append(out, c)
		}
	}
	return out
}

// SortByPrice orders cars in place by PricePerDay. Equal prices keep their order.
func SortByPrice(cars []Car, order PriceOrder) {
	switch order {
	case PriceAscending:
		slices.SortStableFunc(cars, func(a, b Car) int { return cmp.Compare(a.PricePerDay, b.PricePerDay) })
	case PriceDescend:
		slices.SortStableFunc(cars, func(a, b Car) int { return cmp.Compare(b.PricePerDay, a.PricePerDay) })
	}
}
