package payment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Package is a purchasable bundle of credits.
type Package struct {
	Key      string
	Name     string
	Credits  int64
	Price    decimal.Decimal
	Currency string
}

// PerCredit is the unit price rounded to two places.
func (p Package) PerCredit() decimal.Decimal {
	if p.Credits <= 0 {
		return decimal.Zero
	}
	return p.Price.Div(decimal.NewFromInt(p.Credits)).Round(2)
}

// Catalog indexes packages by key.
type Catalog struct {
	packages map[string]Package
}

// DefaultCatalog returns the built-in price list.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]Package{
		{Key: "mini", Name: "Start", Credits: 8, Price: decimal.NewFromInt(79), Currency: "RUB"},
		{Key: "standard", Name: "Medium", Credits: 44, Price: decimal.NewFromInt(299), Currency: "RUB"},
		{Key: "large", Name: "Big", Credits: 140, Price: decimal.NewFromInt(699), Currency: "RUB"},
		{Key: "xl", Name: "Mega", Credits: 340, Price: decimal.NewFromInt(1499), Currency: "RUB"},
		{Key: "whale", Name: "Whale", Credits: 832, Price: decimal.NewFromInt(3499), Currency: "RUB"},
	})
	return c
}

// NewCatalog validates packages and builds a catalog.
func NewCatalog(packages []Package) (*Catalog, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("payment: catalog: at least one package is required")
	}
	c := &Catalog{packages: make(map[string]Package, len(packages))}
	for i, p := range packages {
		p.Key = strings.TrimSpace(p.Key)
		if p.Key == "" {
			return nil, fmt.Errorf("payment: catalog: package[%d]: key is required", i)
		}
		if _, dup := c.packages[p.Key]; dup {
			return nil, fmt.Errorf("payment: catalog: duplicate package %q", p.Key)
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("payment: catalog: package %q: credits must be positive", p.Key)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("payment: catalog: package %q: price must be positive", p.Key)
		}
		if p.Currency == "" {
			p.Currency = "RUB"
		}
		if p.Name == "" {
			p.Name = p.Key
		}
		c.packages[p.Key] = p
	}
	return c, nil
}

type catalogFile struct {
	Packages []struct {
		Key      string `yaml:"key"`
		Name     string `yaml:"name"`
		Credits  int64  `yaml:"credits"`
		Price    string `yaml:"price"`
		Currency string `yaml:"currency"`
	} `yaml:"packages"`
}

// LoadCatalog reads a YAML price list. Environment variables in the form
// ${VAR} are expanded before parsing.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("payment: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML price list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("payment: parse catalog: %w", err)
	}
	packages := make([]Package, 0, len(file.Packages))
	for _, raw := range file.Packages {
		price, err := decimal.NewFromString(strings.TrimSpace(raw.Price))
		if err != nil {
			return nil, fmt.Errorf("payment: catalog: package %q: price: %w", raw.Key, err)
		}
		packages = append(packages, Package{
			Key:      raw.Key,
			Name:     raw.Name,
			Credits:  raw.Credits,
			Price:    price,
			Currency: raw.Currency,
		})
	}
	return NewCatalog(packages)
}

// Get returns the package with key.
func (c *Catalog) Get(key string) (Package, bool) {
	p, ok := c.packages[strings.TrimSpace(key)]
	return p, ok
}

// List returns packages ordered by price.
func (c *Catalog) List() []Package {
	out := make([]Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}
