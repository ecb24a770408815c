package app

import (
	"strings"
)

const DefaultRegion = "default"

// Region is a coarse geographic bucket with the sources worth crawling there.
type Region struct {
	Name     string   `yaml:"name"`
	Prefixes []string `yaml:"prefixes"`
	Sources  []string `yaml:"sources"`
}

var defaultSources = []string{"Reddit", "Twitter", "Nextdoor", "LocalNews"}

var defaultRegions = []Region{
	{Name: "nyc", Prefixes: []string{"100", "101", "102", "103", "104", "112", "113", "114", "116"}, Sources: []string{"Reddit", "StreetEasy", "NYTimes", "Nextdoor"}},
	{Name: "la", Prefixes: []string{"900", "902", "913", "917"}, Sources: []string{"Reddit", "YouTube", "LAist", "Nextdoor"}},
	{Name: "sf", Prefixes: []string{"940", "941", "943", "945", "946"}, Sources: []string{"Reddit", "SFGate", "Nextdoor", "Medium"}},
	{Name: "chicago", Prefixes: []string{"606", "607"}, Sources: []string{"Reddit", "ChicagoTribune", "Nextdoor", "BlockClub"}},
	{Name: "boston", Prefixes: []string{"021", "022"}, Sources: []string{"Reddit", "BostonGlobe", "Nextdoor", "UniversalHub"}},
	{Name: "dc", Prefixes: []string{"200", "202", "203"}, Sources: []string{"Reddit", "WashingtonPost", "Nextdoor", "DCist"}},
	{Name: "atl", Prefixes: []string{"303", "311"}, Sources: []string{"Reddit", "AJC", "Twitter", "Nextdoor"}},
	{Name: "miami", Prefixes: []string{"331", "332"}, Sources: []string{"Reddit", "MiamiHerald", "Twitter", "Nextdoor"}},
	{Name: "dallas", Prefixes: []string{"752", "753"}, Sources: []string{"Reddit", "DallasMorningNews", "Nextdoor"}},
	{Name: "houston", Prefixes: []string{"770", "772"}, Sources: []string{"Reddit", "HoustonChronicle", "Nextdoor"}},
}

// RegionTable resolves location keys to regions by 3-character prefix.
// It is immutable after construction.
type RegionTable struct {
	byPrefix map[string]string
	sources  map[string][]string
}

// DefaultRegionTable returns the built-in metro table.
func DefaultRegionTable() *RegionTable {
	return NewRegionTable(nil)
}

// NewRegionTable builds the built-in table and applies overrides on top. An
// override replaces a region's sources when non-empty and adds its prefixes.
// Naming "default" overrides the fallback source list.
func NewRegionTable(overrides []Region) *RegionTable {
	t := &RegionTable{
		byPrefix: make(map[string]string),
		sources:  map[string][]string{DefaultRegion: defaultSources},
	}
	for _, r := range defaultRegions {
		t.add(r)
	}
	for _, r := range overrides {
		t.add(r)
	}
	return t
}

func (t *RegionTable) add(r Region) {
	name := strings.ToLower(strings.TrimSpace(r.Name))
	if name == "" {
		return
	}
	if len(r.Sources) > 0 {
		t.sources[name] = append([]string(nil), r.Sources...)
	}
	for _, p := range r.Prefixes {
		if len(p) >= 3 {
			t.byPrefix[p[:3]] = name
		}
	}
}

// NormalizeKey cleans a ZIP-like key: trims space, drops dashes and keeps the first 5 characters.
func NormalizeKey(raw string) string {
	key := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	if len(key) > 5 {
		key = key[:5]
	}
	return key
}

// Resolve returns the region for a raw key, or DefaultRegion.
func (t *RegionTable) Resolve(raw string) string {
	key := NormalizeKey(raw)
	if len(key) < 3 {
		return DefaultRegion
	}
	if region, ok := t.byPrefix[key[:3]]; ok {
		if _, known := t.sources[region]; known {
			return region
		}
	}
	return DefaultRegion
}

// Sources returns the candidate sources for a region in preference order.
func (t *RegionTable) Sources(region string) []string {
	if s, ok := t.sources[region]; ok {
		return append([]string(nil), s...)
	}
	return append([]string(nil), t.sources[DefaultRegion]...)
}
