package normalize

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/karthikraju391/rentchat/models"
)

// Defaults applied when a field is absent or has the wrong type.
const (
	DefaultName        = "Unnamed car"
	DefaultLocation    = "Unknown location"
	DefaultCategory    = "Standard"
	DefaultDescription = "No description provided"

	PlaceholderName        = "No cars available"
	PlaceholderDescription = "The catalog returned no listings."
)

// Placeholder returns the row rendered when a response carried no records.
func Placeholder() models.Car {
	return models.Car{
		ID:          0,
		Name:        PlaceholderName,
		Location:    DefaultLocation,
		Category:    DefaultCategory,
		Description: PlaceholderDescription,
		Placeholder: true,
	}
}

// SanitizeAll sanitizes every element. An element without an integral id gets
// the largest id present in items plus its 1-based position, so fallback ids never
// collide with real ones. With no real ids that is just the position.
func SanitizeAll(items []any) []models.Car {
	var base int64
	for _, item := range items {
		obj, _ := item.(map[string]any)
		if id, ok := integer(lookup(obj, "id")); ok && id > base {
			base = id
		}
	}
	cars := make([]models.Car, len(items))
	for i, item := range items {
		cars[i] = Sanitize(item, base+int64(i)+1)
	}
	return cars
}

// Sanitize maps one extracted element onto a complete Car. Fields with the wrong
// type fall back to their default instead of being coerced; fallbackID becomes the
// ID when the element has no integral id.
func Sanitize(v any, fallbackID int64) models.Car {
	obj, _ := v.(map[string]any)

	car := models.Car{
		ID:          fallbackID,
		Name:        stringField(obj, DefaultName, "name"),
		Location:    stringField(obj, DefaultLocation, "location"),
		Category:    stringField(obj, DefaultCategory, "category", "car_type"),
		Description: stringField(obj, DefaultDescription, "description"),
		OwnerEmail:  stringField(obj, "", "owner_email", "owner_contact", "ownerContact"),
	}
	if id, ok := integer(lookup(obj, "id")); ok {
		car.ID = id
	}
	if price, ok := number(lookup(obj, "price_per_day", "pricePerDay")); ok {
		car.PricePerDay = price
	}
	if url := stringField(obj, "", "image_url", "imageUrl"); url != "" {
		car.ImageURL = &url
	}
	return car
}

// lookup returns the first present key's value.
func lookup(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(obj map[string]any, def string, keys ...string) string {
	s, ok := lookup(obj, keys...).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	f, ok := number(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
