package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() []Car {
	return []Car{
		{ID: 1, Name: "Honda Civic", Description: "Automatic", PricePerDay: 40},
		{ID: 2, Name: "Tesla Model Y", Description: "Long range EV", PricePerDay: 95},
		{ID: 3, Name: "VW Golf", Description: "Compact, civic parking friendly", PricePerDay: 35},
		{ID: 4, Name: "Fiat 500", Description: "City car", PricePerDay: 40},
	}
}

func ids(cars []Car) []int64 {
	out := make([]int64, len(cars))
	for i, c := range cars {
		out[i] = c.ID
	}
	return out
}

func TestMatchCars(t *testing.T) {
	cars := catalog()
	assert.Equal(t, []int64{1, 3}, ids(MatchCars(cars, "  CIVIC ")), "matches name or description")
	assert.Equal(t, []int64{2}, ids(MatchCars(cars, "ev")))
	assert.Empty(t, MatchCars(cars, "truck"))
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(MatchCars(cars, "")))
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(cars), "input untouched")
}

func TestSortByPrice(t *testing.T) {
	cars := catalog()
	SortByPrice(cars, PriceAscending)
	assert.Equal(t, []int64{3, 1, 4, 2}, ids(cars))

	SortByPrice(cars, PriceDescend)
	assert.Equal(t, []int64{2, 1, 4, 3}, ids(cars))

	cars = catalog()
	SortByPrice(cars, PriceUnsorted)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(cars))
}

func TestParsePriceOrder(t *testing.T) {
	for in, want := range map[string]PriceOrder{"": PriceUnsorted, "ASC": PriceAscending, " desc ": PriceDescend} {
		got, err := ParsePriceOrder(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParsePriceOrder("cheapest")
	assert.Error(t, err)
}

func TestCarFilterEmpty(t *testing.T) {
	assert.True(t, CarFilter{}.Empty())
	assert.False(t, CarFilter{Location: "Berlin"}.Empty())
	assert.False(t, CarFilter{MaxPrice: 10}.Empty())
}
