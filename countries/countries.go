// Package countries provides the immutable table of countries (and their addressing regions)
// that the building importer and the region generator operate on.
package countries

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/aaronland/gocloud-blob/bucket"
	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"
)

//go:embed countries.json
var default_countries []byte

var ErrUnknownCountry = errors.New("Unknown country")

// UnknownCountryError is returned by Config.Lookup and lists the codes that are available.
type UnknownCountryError struct {
	Query     string
	Available []string
}

func (e *UnknownCountryError) Error() string {
	return fmt.Sprintf("Country code '%s' not found. Available countries: %s", e.Query, strings.Join(e.Available, ", "))
}

func (e *UnknownCountryError) Unwrap() error {
	return ErrUnknownCountry
}

type Region struct {
	Code     string
	Name     string
	Center   orb.Point
	RadiusKm float64
}

type Country struct {
	// ISO 3166-1 alpha-3 code
	Code    string
	Name    string
	Bounds  Bounds
	Center  orb.Point
	Regions []Region
}

func (c *Country) Validate() error {

	if c.Code == "" {
		return fmt.Errorf("Missing country code")
	}

	err := c.Bounds.Validate()

	if err != nil {
		return fmt.Errorf("Invalid bounds for %s, %w", c.Code, err)
	}

	for _, r := range c.Regions {

		if r.RadiusKm <= 0 {
			return fmt.Errorf("Invalid radius for region %s in %s", r.Code, c.Code)
		}
	}

	return nil
}

// Config is the country table. It is constructed once and never mutated.
type Config struct {
	countries map[string]Country
	codes     []string
}

func NewConfig(countries ...Country) (*Config, error) {

	cfg := &Config{
		countries: make(map[string]Country),
		codes:     make([]string, 0, len(countries)),
	}

	for _, c := range countries {

		c.Code = strings.ToUpper(c.Code)

		err := c.Validate()

		if err != nil {
			return nil, err
		}

		_, exists := cfg.countries[c.Code]

		if exists {
			return nil, fmt.Errorf("Duplicate country code %s", c.Code)
		}

		c.Regions = slices.Clone(c.Regions)
		cfg.countries[c.Code] = c
		cfg.codes = append(cfg.codes, c.Code)
	}

	sort.Strings(cfg.codes)
	return cfg, nil
}

// Default returns the country table bundled with the package.
func Default() (*Config, error) {
	return Load(default_countries)
}

// Load parses a JSON document of the form {"countries": {"UGA": {"name": ..., "bounds": {...}, "regions": {...}}}}.
func Load(body []byte) (*Config, error) {

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("Failed to parse country configuration, invalid JSON")
	}

	countries_rsp := gjson.GetBytes(body, "countries")

	if !countries_rsp.Exists() {
		return nil, fmt.Errorf("Country configuration is missing 'countries' property")
	}

	countries := make([]Country, 0)
	var parse_err error

	countries_rsp.ForEach(func(k gjson.Result, v gjson.Result) bool {

		c, err := parseCountry(k.String(), v)

		if err != nil {
			parse_err = err
			return false
		}

		countries = append(countries, c)
		return true
	})

	if parse_err != nil {
		return nil, parse_err
	}

	return NewConfig(countries...)
}

func parseCountry(code string, v gjson.Result) (Country, error) {

	c := Country{
		Code: code,
		Name: v.Get("name").String(),
	}

	for _, path := range []string{"bounds.min_lat", "bounds.max_lat", "bounds.min_lon", "bounds.max_lon"} {

		if !v.Get(path).Exists() {
			return c, fmt.Errorf("Country %s is missing '%s' property", code, path)
		}
	}

	c.Bounds = Bounds{
		MinLat: v.Get("bounds.min_lat").Float(),
		MaxLat: v.Get("bounds.max_lat").Float(),
		MinLon: v.Get("bounds.min_lon").Float(),
		MaxLon: v.Get("bounds.max_lon").Float(),
	}

	center_rsp := v.Get("center")

	if center_rsp.Exists() {
		c.Center = orb.Point{center_rsp.Get("0").Float(), center_rsp.Get("1").Float()}
	} else {
		c.Center = c.Bounds.Bound().Center()
	}

	regions := make([]Region, 0)

	v.Get("regions").ForEach(func(rk gjson.Result, rv gjson.Result) bool {

		r := Region{
			Code:     rk.String(),
			Name:     rv.Get("name").String(),
			Center:   orb.Point{rv.Get("center.0").Float(), rv.Get("center.1").Float()},
			RadiusKm: rv.Get("radius_km").Float(),
		}

		regions = append(regions, r)
		return true
	})

	c.Regions = regions
	return c, nil
}

// Lookup returns the country matching q, an ISO code or a country name. Matching is case-insensitive.
func (cfg *Config) Lookup(q string) (Country, error) {

	code := strings.ToUpper(strings.TrimSpace(q))

	c, exists := cfg.countries[code]

	if exists {
		return clone(c), nil
	}

	for _, k := range cfg.codes {

		c := cfg.countries[k]

		if strings.EqualFold(c.Name, strings.TrimSpace(q)) {
			return clone(c), nil
		}
	}

	return Country{}, &UnknownCountryError{
		Query:     code,
		Available: slices.Clone(cfg.codes),
	}
}

// Countries returns every configured country sorted by code. An empty table yields an empty list.
func (cfg *Config) Countries() []Country {

	list := make([]Country, len(cfg.codes))

	for i, code := range cfg.codes {
		list[i] = clone(cfg.countries[code])
	}

	return list
}

func clone(c Country) Country {
	c.Regions = slices.Clone(c.Regions)
	return c
}

// Open reads a country table from uri, a gocloud blob URI naming a JSON document
// (for example file:///usr/local/data/countries.json). An empty uri returns Default().
func Open(ctx context.Context, uri string) (*Config, error) {

	if uri == "" {
		return Default()
	}

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse %s, %w", uri, err)
	}

	key := path.Base(u.Path)
	u.Path = path.Dir(u.Path)

	b, err := bucket.OpenBucket(ctx, u.String())

	if err != nil {
		return nil, fmt.Errorf("Failed to open bucket for %s, %w", uri, err)
	}

	defer b.Close()

	body, err := b.ReadAll(ctx, key)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", uri, err)
	}

	return Load(body)
}
