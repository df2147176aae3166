package wake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Category is a wake turbulence category
type Category string

const (
	Heavy  Category = "HEAVY"
	Medium Category = "MEDIUM"
	Light  Category = "LIGHT"
)

// familyLen is the designator prefix shared by variants of one airframe family
const familyLen = 3

var weight = map[Category]int{Light: 1, Medium: 2, Heavy: 3}

// DefaultSeparationNM is used for category pairs without a specific rule
const DefaultSeparationNM = 3.0

var builtinTypes = map[string]Category{
	"B747": Heavy, "B777": Heavy, "A330": Heavy, "A340": Heavy, "A380": Heavy,
	"B737": Medium, "B738": Medium, "A320": Medium, "A321": Medium,
	"AT72": Light, "DH8D": Light, "CRJ9": Light,
}

// Distance separations in NM, keyed leader then follower
var distanceNM = map[Category]map[Category]float64{
	Heavy:  {Heavy: 4, Medium: 5, Light: 6},
	Medium: {Medium: 3, Light: 3},
	Light:  {Light: 3},
}

// Time separations in seconds for departures behind a leader
var timeSeconds = map[Category]map[Category]float64{
	Heavy:  {Heavy: 120, Medium: 150, Light: 180},
	Medium: {Medium: 90, Light: 90},
	Light:  {Light: 60},
}

// SeparationNM returns the required distance separation for a leader/follower pair
func SeparationNM(leader, follower Category) float64 {
	if v, ok := distanceNM[leader][follower]; ok {
		return v
	}
	return DefaultSeparationNM
}

// SeparationSeconds returns the required time separation for a leader/follower pair.
// Pairs without a rule return 0.
func SeparationSeconds(leader, follower Category) float64 {
	return timeSeconds[leader][follower]
}

// Catalog resolves aircraft type designators to wake categories. Unknown types resolve to
// MEDIUM. Lookups that need a prefix search are cached.
type Catalog struct {
	types    map[string]Category
	prefixes []string // known designators, sorted
	cache    *expirable.LRU[string, Category]
}

// NewCatalog returns a catalog seeded with the built-in type table
func NewCatalog() *Catalog {
	c := &Catalog{
		types: make(map[string]Category, len(builtinTypes)),
		cache: expirable.NewLRU[string, Category](512, nil, time.Hour),
	}
	for t, cat := range builtinTypes {
		c.types[t] = cat
	}
	c.reindex()
	return c
}

// LoadCSV reads "icao_type,category" rows from path into a new catalog. A header row
// and blank lines are ignored. Entries override the built-in table.
func LoadCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wake catalog: %w", err)
	}
	defer f.Close()

	c := NewCatalog()
	if err := c.ReadCSV(f); err != nil {
		return nil, fmt.Errorf("failed to read wake catalog %s: %w", path, err)
	}
	return c, nil
}

// ReadCSV merges rows from r into the catalog
func (c *Catalog) ReadCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		line++
		if len(record) < 2 {
			continue
		}
		designator := normalize(record[0])
		if designator == "" || (line == 1 && strings.EqualFold(designator, "ICAO_TYPE")) {
			continue
		}
		cat, err := ParseCategory(record[1])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		c.types[designator] = cat
	}

	c.reindex()
	c.cache.Purge()
	return nil
}

// ParseCategory accepts full names or ICAO letters (H, M, L, J for super)
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HEAVY", "H", "J", "SUPER":
		return Heavy, nil
	case "MEDIUM", "M":
		return Medium, nil
	case "LIGHT", "L":
		return Light, nil
	}
	return "", fmt.Errorf("unknown wake category %q", s)
}

// Lookup returns the category for an aircraft type designator
func (c *Catalog) Lookup(aircraftType string) Category {
	key := normalize(aircraftType)
	if key == "" {
		return Medium
	}
	if cat, ok := c.types[key]; ok {
		return cat
	}
	if cat, ok := c.cache.Get(key); ok {
		return cat
	}

	cat := Medium
	if len(key) >= familyLen+1 {
		// B77W, B744 and similar variants take the heaviest known member of their family
		found := false
		for _, p := range c.prefixes {
			if len(p) <= familyLen || p[:familyLen] != key[:familyLen] {
				continue
			}
			if !found || weight[c.types[p]] > weight[cat] {
				cat = c.types[p]
			}
			found = true
		}
	}
	c.cache.Add(key, cat)
	return cat
}

// Len returns the number of known designators
func (c *Catalog) Len() int {
	return len(c.types)
}

func (c *Catalog) reindex() {
	c.prefixes = c.prefixes[:0]
	for t := range c.types {
		c.prefixes = append(c.prefixes, t)
	}
	sort.Slice(c.prefixes, func(i, j int) bool {
		if len(c.prefixes[i]) != len(c.prefixes[j]) {
			return len(c.prefixes[i]) > len(c.prefixes[j])
		}
		return c.prefixes[i] < c.prefixes[j]
	})
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
