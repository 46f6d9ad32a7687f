package scheduler

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

//go:embed zones.yaml
var zonesYAML []byte

// ErrZoneNotFound indicates a label that maps to no known time zone.
var ErrZoneNotFound = errors.New("scheduler: time zone not found")

const defaultZoneCacheSize = 64

var utcPrefix = regexp.MustCompile(`^\(\s*(?:UTC|GMT)\s*(?:[+\-±−]\s*\d{1,2}(?:[.:]\d{1,2})?)?\s*\)\s*`)

// Zone is a resolved time zone.
type Zone struct {
	// Label is the label the caller supplied, trimmed.
	Label string
	// Name is the canonical IANA identifier.
	Name     string
	Location *time.Location
}

type zoneTable struct {
	Zones []struct {
		Label string `yaml:"label"`
		Zone  string `yaml:"zone"`
	} `yaml:"zones"`
}

// ZoneResolver maps UI display labels and IANA identifiers to locations.
type ZoneResolver struct {
	labels map[string]string
	cache  *lru.Cache[string, *time.Location]
}

// NewZoneResolver builds a resolver from a YAML label table. A nil table
// selects the embedded default.
func NewZoneResolver(table []byte, cacheSize int) (*ZoneResolver, error) {
	if table == nil {
		table = zonesYAML
	}
	if cacheSize <= 0 {
		cacheSize = defaultZoneCacheSize
	}

	var parsed zoneTable
	if err := yaml.Unmarshal(table, &parsed); err != nil {
		return nil, fmt.Errorf("scheduler: parse zone table: %w", err)
	}

	labels := make(map[string]string, len(parsed.Zones))
	for _, entry := range parsed.Zones {
		key := normalizeLabel(entry.Label)
		if key == "" || strings.TrimSpace(entry.Zone) == "" {
			return nil, fmt.Errorf("scheduler: zone table entry %q is incomplete", entry.Label)
		}
		if _, err := time.LoadLocation(entry.Zone); err != nil {
			return nil, fmt.Errorf("scheduler: zone table entry %q: %w", entry.Label, err)
		}
		labels[key] = entry.Zone
	}

	cache, err := lru.New[string, *time.Location](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("scheduler: zone cache: %w", err)
	}
	return &ZoneResolver{labels: labels, cache: cache}, nil
}

var defaultResolver = sync.OnceValue(func() *ZoneResolver {
	resolver, err := NewZoneResolver(nil, defaultZoneCacheSize)
	if err != nil {
		panic(err)
	}
	return resolver
})

// DefaultZoneResolver returns a shared resolver over the embedded table.
func DefaultZoneResolver() *ZoneResolver {
	return defaultResolver()
}

// Resolve accepts a display label such as "(UTC-05) Eastern Time", the bare
// label "Eastern Time", or an IANA identifier such as "America/New_York".
func (r *ZoneResolver) Resolve(label string) (Zone, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" || strings.EqualFold(trimmed, "local") {
		return Zone{}, fmt.Errorf("%w: %q", ErrZoneNotFound, label)
	}

	candidates := []string{trimmed}
	if bare := utcPrefix.ReplaceAllString(trimmed, ""); bare != trimmed && bare != "" {
		candidates = append(candidates, bare)
	}

	for _, candidate := range candidates {
		if name, ok := r.labels[normalizeLabel(candidate)]; ok {
			return r.zone(trimmed, name)
		}
	}
	for _, candidate := range candidates {
		if !strings.Contains(candidate, "/") && !strings.EqualFold(candidate, "UTC") {
			continue
		}
		if zone, err := r.zone(trimmed, candidate); err == nil {
			return zone, nil
		}
	}
	return Zone{}, fmt.Errorf("%w: %q", ErrZoneNotFound, label)
}

func (r *ZoneResolver) zone(label, name string) (Zone, error) {
	if loc, ok := r.cache.Get(name); ok {
		return Zone{Label: label, Name: name, Location: loc}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %q", ErrZoneNotFound, name)
	}
	r.cache.Add(name, loc)
	return Zone{Label: label, Name: name, Location: loc}, nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
