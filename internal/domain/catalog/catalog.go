package catalog

import (
	"sort"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Package is a purchasable subscription extension
type Package struct {
	ID          string          `json:"package_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Duration    time.Duration   `json:"-"`
	Days        int             `json:"duration_days"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

// Catalog is an immutable lookup table of packages
type Catalog struct {
	packages map[string]Package
}

// New builds the catalog from configuration
func New(cfg *config.Configuration) (*Catalog, error) {
	packages := make(map[string]Package, len(cfg.Catalog.Packages))
	for _, p := range cfg.Catalog.Packages {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Invalid price %q for package %s", p.Price, p.ID).
				Mark(ierr.ErrValidation)
		}
		if _, dup := packages[p.ID]; dup {
			return nil, ierr.NewErrorf("duplicate package %s", p.ID).
				WithHintf("Package %s is configured twice", p.ID).
				Mark(ierr.ErrValidation)
		}
		packages[p.ID] = Package{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Duration:    time.Duration(p.DurationDays) * 24 * time.Hour,
			Days:        p.DurationDays,
			Price:       price,
			Currency:    p.Currency,
		}
	}
	return &Catalog{packages: packages}, nil
}

// Resolve returns the package or ErrUnknownPackage
func (c *Catalog) Resolve(packageID string) (Package, error) {
	p, ok := c.packages[packageID]
	if !ok {
		return Package{}, ierr.NewErrorf("unknown package %q", packageID).
			WithHint("Unknown package type").
			WithReportableDetails(map[string]any{"package_type": packageID}).
			Mark(ierr.ErrUnknownPackage)
	}
	return p, nil
}

// List returns all packages ordered by id
func (c *Catalog) List() []Package {
	list := lo.Values(c.packages)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
