package imaging

import (
	"fmt"
	"strings"
)

// NewBackend picks a backend by its configured name.
func NewBackend(name, url string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None{}, nil
	case "simulation":
		return NewSimulation(), nil
	case "sgpro":
		return NewSGPro(url, nil), nil
	}
	return nil, fmt.Errorf("unknown imaging backend %q", name)
}
