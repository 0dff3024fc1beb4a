// Package catalog maps Stripe price ids to the credits a purchase grants.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type productsFile struct {
	Products []productEntry `yaml:"products"`
}

type productEntry struct {
	PriceID string `yaml:"price_id"`
	Name    string `yaml:"name"`
	Credits int64  `yaml:"credits"`
}

// Product is one purchasable credit pack.
type Product struct {
	PriceID string
	Name    string
	Credits int64
}

// Catalog is an immutable price id lookup table.
type Catalog struct {
	products map[string]Product
}

// New builds a catalog from products, rejecting duplicates and non-positive credits.
func New(products ...Product) (*Catalog, error) {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for i, p := range products {
		p.PriceID = strings.TrimSpace(p.PriceID)
		if p.PriceID == "" {
			return nil, fmt.Errorf("products[%d]: price_id is required", i)
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("products[%d]: credits must be positive", i)
		}
		if _, dup := c.products[p.PriceID]; dup {
			return nil, fmt.Errorf("products[%d]: duplicate price_id %s", i, p.PriceID)
		}
		c.products[p.PriceID] = p
	}
	return c, nil
}

// Load reads a products YAML file. An empty file yields an empty catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}
	return Parse(data)
}

// Parse decodes products YAML.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New()
	}

	var file productsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal products yaml: %w", err)
	}

	products := make([]Product, 0, len(file.Products))
	for _, entry := range file.Products {
		products = append(products, Product{
			PriceID: entry.PriceID,
			Name:    entry.Name,
			Credits: entry.Credits,
		})
	}
	return New(products...)
}

// CreditsForPrice returns the credits granted per unit of priceID.
func (c *Catalog) CreditsForPrice(priceID string) (int64, bool) {
	p, ok := c.products[priceID]
	if !ok {
		return 0, false
	}
	return p.Credits, true
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}
