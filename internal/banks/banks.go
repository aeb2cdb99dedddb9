// Package banks serves the lender catalog shown next to loan decisions.
package banks

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/opensource-finance/credbud/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed banks.yaml
var defaultCatalog []byte

// TrustedAbove is the trust score a bank must exceed to be listed as trusted.
const TrustedAbove = 9.5

// Catalog is an immutable list of banks.
type Catalog struct {
	banks []domain.Bank
}

type catalogFile struct {
	Banks []domain.Bank `yaml:"banks"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded bank catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bank catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Bank IDs must be unique.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse bank catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Banks))
	for _, b := range f.Banks {
		if b.ID == "" || b.Name == "" {
			return nil, fmt.Errorf("bank entry missing id or name: %+v", b)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate bank id %q", b.ID)
		}
		seen[b.ID] = true
	}
	return &Catalog{banks: f.Banks}, nil
}

// All returns every bank in catalog order.
func (c *Catalog) All() []domain.Bank {
	return append([]domain.Bank(nil), c.banks...)
}

// Top returns the n banks with the lowest interest rate.
func (c *Catalog) Top(n int) []domain.Bank {
	sorted := c.All()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InterestRate < sorted[j].InterestRate
	})
	if n < 0 {
		n = 0
	}
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Trusted returns banks whose trust score is strictly above min.
func (c *Catalog) Trusted(min float64) []domain.Bank {
	out := []domain.Bank{}
	for _, b := range c.banks {
		if b.TrustScore > min {
			out = append(out, b)
		}
	}
	return out
}

// Get returns a bank by ID.
func (c *Catalog) Get(id string) (domain.Bank, bool) {
	for _, b := range c.banks {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Bank{}, false
}
