// Package region resolves campaign target regions to country lists using a
// static JSON mapping loaded once at startup.
package region

import (
	"encoding/json"
	"fmt"
	"os"
)

// Lookup maps region names to country lists.
type Lookup struct {
	regions map[string][]string
}

// Load reads the mapping file. A missing file yields an empty lookup, not an
// error: region targeting simply resolves to nothing.
func Load(path string) (*Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Lookup{regions: map[string][]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read regions file: %w", err)
	}

	regions := map[string][]string{}
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("failed to parse regions file: %w", err)
	}
	return &Lookup{regions: regions}, nil
}

// NewLookup builds a lookup from an in-memory mapping.
func NewLookup(regions map[string][]string) *Lookup {
	if regions == nil {
		regions = map[string][]string{}
	}
	return &Lookup{regions: regions}
}

// Expand returns the union of countries mapped to the given regions. Unknown
// regions contribute nothing.
func (l *Lookup) Expand(regions []string) []string {
	var countries []string
	for _, region := range regions {
		countries = append(countries, l.regions[region]...)
	}
	return countries
}
