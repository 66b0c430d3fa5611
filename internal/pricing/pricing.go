package pricing

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/fjod/mindquiz/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

const (
	// MinCharge is the floor for every discounted amount.
	MinCharge int64 = 0

	fixedDiscount int64 = 1000
)

var (
	ErrEmptyCatalog   = errors.New("pricing catalog has no skus")
	ErrUnknownDefault = errors.New("pricing catalog default sku is not listed")

	discount10 = decimal.NewFromFloat(0.9)
)

type catalogFile struct {
	Default string           `yaml:"default"`
	SKUs    map[string]int64 `yaml:"skus"`
}

// Catalog resolves SKU prices. Client-supplied amounts never reach it.
type Catalog struct {
	fallback string
	prices   map[string]int64
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pricing file: %w", err)
		}
		data = b
	}
	return parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pricing catalog: %w", err)
	}
	if len(f.SKUs) == 0 {
		return nil, ErrEmptyCatalog
	}
	if f.Default == "" {
		f.Default = "REPORT_BASE"
	}
	if _, ok := f.SKUs[f.Default]; !ok {
		return nil, ErrUnknownDefault
	}
	return &Catalog{fallback: f.Default, prices: f.SKUs}, nil
}

// Base returns the list price for sku; unknown or empty skus get the default price.
func (c *Catalog) Base(sku string) int64 {
	if p, ok := c.prices[sku]; ok {
		return p
	}
	return c.prices[c.fallback]
}

// ComputeFinalAmount applies coupon to the price of sku. A nil coupon or an
// unrecognized coupon type leaves the base price.
func (c *Catalog) ComputeFinalAmount(sku string, coupon *domain.Coupon) int64 {
	base := c.Base(sku)
	if coupon == nil {
		return base
	}

	switch coupon.Type {
	case domain.CouponDiscount10:
		// half away from zero
		amount := decimal.NewFromInt(base).Mul(discount10).Round(0).IntPart()
		return max(MinCharge, amount)
	case domain.CouponExpansionPack:
		return base
	case domain.CouponFixed1000:
		return max(MinCharge, base-fixedDiscount)
	default:
		return base
	}
}
