// Package enums holds the string-backed value sets persisted in Postgres
// enum columns and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](kind string, set []T, raw string) (T, error) {
	if v := T(raw); member(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
