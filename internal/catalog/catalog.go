// Package catalog serves the demo product catalog from memory.
package catalog

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*Catalog)(nil)

// Catalog implements product.Repository over a fixed product list.
type Catalog struct {
	products []product.Product
	byID     map[string]int
}

// New returns a Catalog of products in the given order. Product IDs must be
// unique and non-empty.
func New(products []product.Product) (*Catalog, error) {
	c := &Catalog{
		products: slices.Clone(products),
		byID:     make(map[string]int, len(products)),
	}
	for i, p := range c.products {
		if p.ID == "" {
			return nil, errors.Errorf("product at index %d has no id", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, errors.Errorf("duplicate product id %q", p.ID)
		}
		c.byID[p.ID] = i
	}
	return c, nil
}

// Embedded returns the Catalog built from the embedded demo products.
func Embedded() (*Catalog, error) {
	products, err := Parse(db.Products)
	if err != nil {
		return nil, errors.Wrap(err, "parse embedded catalog")
	}
	return New(products)
}

// List returns all products in catalog order.
func (c *Catalog) List(context.Context) ([]product.Product, error) {
	return slices.Clone(c.products), nil
}

// GetByID returns the product with the given id or product.ErrNotFound.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := c.products[i]
	return &p, nil
}

// Parse decodes a JSON array of products. Prices may be JSON numbers or
// numeric strings and must not be negative.
func Parse(data []byte) ([]product.Product, error) {
	var out []product.Product
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var (
		p        product.Product
		hasPrice bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = decodePrice(d)
			hasPrice = true
		case "category":
			p.Category, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return p, err
	}

	switch {
	case p.ID == "":
		return p, errors.New("missing id")
	case !hasPrice:
		return p, errors.Errorf("product %q: missing price", p.ID)
	case p.Price.IsNegative():
		return p, errors.Errorf("product %q: negative price", p.ID)
	}
	return p, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}
