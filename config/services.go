package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ServiceMode names a component sessiond can run.
type ServiceMode string

const (
	// ServiceModeHTTP serves the session API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSweeper periodically evicts expired sessions.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes lists every mode accepted by ParseServices.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeSweeper}
}

func validModeNames() string {
	modes := ValidServiceModes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// ParseServices turns a comma-separated SERVICES value into a set of modes.
// Blank entries are skipped; unknown names are rejected.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	if strings.TrimSpace(servicesStr) == "" {
		return map[ServiceMode]bool{}, errors.New("at least one service must be specified")
	}

	valid := ValidServiceModes()
	services := make(map[ServiceMode]bool, len(valid))
	for part := range strings.SplitSeq(servicesStr, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !slices.Contains(valid, mode) {
			return nil, fmt.Errorf("invalid service name: %q (valid options: %s)", name, validModeNames())
		}
		services[mode] = true
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}
