// Package location holds the static country and city catalog used by the
// registration wizard's dependent dropdowns.
package location

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/msomdec/agun-web/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed locations.yaml
var embeddedCatalog []byte

type catalogFile struct {
	Countries []struct {
		ID        string   `yaml:"id"`
		Name      string   `yaml:"name"`
		Residence bool     `yaml:"residence"`
		Cities    []string `yaml:"cities"`
	} `yaml:"countries"`
}

// Catalog is a read-only set of countries and their cities.
// All slices are sorted once at load time; accessors return copies.
type Catalog struct {
	countries     map[string]domain.Country
	nationalities []domain.Country
	residences    []domain.Country
	cities        map[string][]domain.City
	cityIndex     map[string]map[string]domain.City
}

// LoadEmbedded parses the catalog compiled into the binary, sorting names for tag.
func LoadEmbedded(tag language.Tag) (*Catalog, error) {
	return Load(embeddedCatalog, tag)
}

// Load parses a YAML catalog. Names are ordered with tag's collation at
// primary strength, so case and accents do not affect ordering.
func Load(data []byte, tag language.Tag) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse location catalog: %w", err)
	}
	if len(file.Countries) == 0 {
		return nil, fmt.Errorf("location catalog has no countries")
	}

	col := collate.New(tag, collate.Loose)
	byName := func(a, b string) int { return col.CompareString(a, b) }

	c := &Catalog{
		countries: make(map[string]domain.Country, len(file.Countries)),
		cities:    make(map[string][]domain.City, len(file.Countries)),
		cityIndex: make(map[string]map[string]domain.City, len(file.Countries)),
	}

	for _, fc := range file.Countries {
		id := strings.TrimSpace(fc.ID)
		if id == "" || fc.Name == "" {
			return nil, fmt.Errorf("country %q: id and name are required", fc.ID)
		}
		if _, dup := c.countries[id]; dup {
			return nil, fmt.Errorf("duplicate country %q", id)
		}

		country := domain.Country{ID: id, Name: fc.Name, Residence: fc.Residence}
		c.countries[id] = country
		c.nationalities = append(c.nationalities, country)
		if country.Residence {
			c.residences = append(c.residences, country)
		}

		index := make(map[string]domain.City, len(fc.Cities))
		list := make([]domain.City, 0, len(fc.Cities))
		for _, name := range fc.Cities {
			cityID, err := Slug(name)
			if err != nil {
				return nil, fmt.Errorf("slug city %q: %w", name, err)
			}
			if _, dup := index[cityID]; dup {
				return nil, fmt.Errorf("country %q: duplicate city %q", id, cityID)
			}
			city := domain.City{ID: cityID, Name: name, CountryID: id}
			index[cityID] = city
			list = append(list, city)
		}
		slices.SortStableFunc(list, func(a, b domain.City) int { return byName(a.Name, b.Name) })
		c.cities[id] = list
		c.cityIndex[id] = index
	}

	sortCountries := func(list []domain.Country) {
		slices.SortStableFunc(list, func(a, b domain.Country) int { return byName(a.Name, b.Name) })
	}
	sortCountries(c.nationalities)
	sortCountries(c.residences)

	return c, nil
}

// Country looks up a country by ID.
func (c *Catalog) Country(id string) (domain.Country, bool) {
	country, ok := c.countries[id]
	return country, ok
}

// Nationalities returns every country, sorted by name.
func (c *Catalog) Nationalities() []domain.Country {
	return slices.Clone(c.nationalities)
}

// ResidenceCountries returns the countries offered as a place of residence.
func (c *Catalog) ResidenceCountries() []domain.Country {
	return slices.Clone(c.residences)
}

// CitiesOf returns the cities of countryID sorted by name. Unknown or empty
// IDs yield an empty list.
func (c *Catalog) CitiesOf(countryID string) []domain.City {
	return slices.Clone(c.cities[countryID])
}

// City looks up a city within a country.
func (c *Catalog) City(countryID, cityID string) (domain.City, bool) {
	city, ok := c.cityIndex[countryID][cityID]
	return city, ok
}

// HasCity reports whether cityID belongs to countryID.
func (c *Catalog) HasCity(countryID, cityID string) bool {
	_, ok := c.City(countryID, cityID)
	return ok
}

// Fold lower-cases s and strips its accents, so "Évry" and "evry" compare equal.
func Fold(s string) (string, error) {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, strings.ToLower(strings.TrimSpace(s)))
	return folded, err
}

// Slug derives a city ID from its display name: lower case, accents removed,
// spaces and apostrophes replaced by dashes.
func Slug(name string) (string, error) {
	folded, err := Fold(name)
	if err != nil {
		return "", err
	}
	folded = strings.NewReplacer(" ", "-", "'", "-", "’", "-").Replace(folded)
	if folded == "" {
		return "", fmt.Errorf("empty name")
	}
	return folded, nil
}

// FilterCities keeps the cities whose folded name contains the folded query,
// in their original order. The city with ID keep always stays so that a
// selection survives narrowing the list. An empty query keeps everything.
func FilterCities(cities []domain.City, query, keep string) []domain.City {
	q, err := Fold(query)
	if err != nil || q == "" {
		return slices.Clone(cities)
	}
	var out []domain.City
	for _, city := range cities {
		name, err := Fold(city.Name)
		if err != nil {
			continue
		}
		if city.ID == keep || strings.Contains(name, q) {
			out = append(out, city)
		}
	}
	return out
}
