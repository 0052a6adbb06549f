package registry

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

//go:embed sites.json
var defaultSites []byte

// ErrInvalidRegistry marks a registry file that cannot be used.
var ErrInvalidRegistry = errors.New("registry: invalid")

// Default returns the registry shipped with the binary.
func Default() (*Registry, error) {
	return Parse(defaultSites)
}

// Load reads a registry from a JSON file. An empty path yields Default.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a JSON array of sites.
func Parse(raw []byte) (*Registry, error) {
	var sites []Site
	if err := json.Unmarshal(raw, &sites); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidRegistry, err)
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: no sites", ErrInvalidRegistry)
	}
	validate := validator.New()
	codes := make(map[string]int, len(sites))
	for i, s := range sites {
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("%w: site %d (%q): %v", ErrInvalidRegistry, i, s.Code, err)
		}
		key := Key(s.Code)
		if prev, ok := codes[key]; ok {
			return nil, fmt.Errorf("%w: duplicate code %q at %d and %d", ErrInvalidRegistry, s.Code, prev, i)
		}
		codes[key] = i
	}
	return New(sites), nil
}
