package utils

import (
	"math"
	"sort"
)

// SortDesc orders items by value descending, breaking ties by name ascending.
func SortDesc[T any](items []T, value func(T) float64, name func(T) string) []T {
	sort.SliceStable(items, func(i, j int) bool {
		vi, vj := value(items[i]), value(items[j])
		if vi != vj {
			return vi > vj
		}
		return name(items[i]) < name(items[j])
	})
	return items
}

func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
