package enums

// SearchMode reports which branch of the pharmacy search produced the results.
type SearchMode string

const (
	SearchModeWithinRadius     SearchMode = "within_radius"
	SearchModeNearestAvailable SearchMode = "nearest_available"
)

var validSearchModes = []SearchMode{
	SearchModeWithinRadius,
	SearchModeNearestAvailable,
}

// String implements fmt.Stringer.
func (s SearchMode) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SearchMode.
func (s SearchMode) IsValid() bool {
	return member(validSearchModes, s)
}

// ParseSearchMode converts raw input into a SearchMode.
func ParseSearchMode(value string) (SearchMode, error) {
	return parse("search mode", validSearchModes, value)
}
