// Package codec converts cart and favorites collections to and from their
// persisted JSON form.
//
// Each collection is a JSON array of flat records:
//
//	[{"id":"1","productId":"1","name":"Headphones","price":199.99,
//	  "quantity":1,"image":"h.jpg","addedAt":"2025-06-15T12:00:00Z"}]
//
// Optional fields (quantity for favorites, size, color, notes) are omitted
// when unset; a missing or null optional field decodes as unset.
package codec

import (
	"bytes"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

// ErrMalformed is wrapped by every decode error.
var ErrMalformed = errors.New("malformed collection")

// jsonSpace is the insignificant whitespace allowed around a JSON value.
const jsonSpace = " \t\r\n"

// timeLayout round-trips every instant exactly; values are written in UTC.
const timeLayout = time.RFC3339Nano

// EncodeCart encodes cart items in order.
func EncodeCart(items []cart.CartItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		encodeLineItem(&e, it.LineItem)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		optStr(&e, "size", it.Size)
		optStr(&e, "color", it.Color)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// EncodeFavorites encodes favorite items in order.
func EncodeFavorites(items []cart.FavoriteItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		encodeLineItem(&e, it.LineItem)
		optStr(&e, "notes", it.Notes)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// DecodeCart decodes data produced by EncodeCart.
func DecodeCart(data []byte) ([]cart.CartItem, error) {
	var items []cart.CartItem
	err := decodeArray(data, func(d *jx.Decoder) error {
		var (
			it  cart.CartItem
			req required
		)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "quantity":
				if d.Next() == jx.Null {
					return d.Null()
				}
				v, err := d.Int()
				if err != nil {
					return errors.Wrap(err, "quantity")
				}
				it.Quantity = v
				req.quantity = true
			case "size":
				return optStrDecode(d, &it.Size)
			case "color":
				return optStrDecode(d, &it.Color)
			default:
				return decodeLineItemField(d, key, &it.LineItem, &req)
			}
			return nil
		}); err != nil {
			return err
		}
		if err := req.check(true); err != nil {
			return err
		}
		if it.Quantity < 1 {
			return errors.Errorf("product %q: quantity %d must be at least 1", it.ProductID, it.Quantity)
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DecodeFavorites decodes data produced by EncodeFavorites.
func DecodeFavorites(data []byte) ([]cart.FavoriteItem, error) {
	var items []cart.FavoriteItem
	err := decodeArray(data, func(d *jx.Decoder) error {
		var (
			it  cart.FavoriteItem
			req required
		)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if key == "notes" {
				return optStrDecode(d, &it.Notes)
			}
			return decodeLineItemField(d, key, &it.LineItem, &req)
		}); err != nil {
			return err
		}
		if err := req.check(false); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func encodeLineItem(e *jx.Encoder, it cart.LineItem) {
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("productId")
	e.Str(it.ProductID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("price")
	EncodePrice(e, it.Price)
	e.FieldStart("image")
	e.Str(it.Image)
	e.FieldStart("addedAt")
	e.Str(it.AddedAt.UTC().Format(timeLayout))
}

// EncodePrice writes d as a JSON number.
func EncodePrice(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(formatPrice(d)))
}

// formatPrice keeps the fractional scale of the decimal, so 59.0 stays 59.0.
// A positive exponent is written out in full: 5E2 becomes 500.
func formatPrice(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func optStr(e *jx.Encoder, field, v string) {
	if v == "" {
		return
	}
	e.FieldStart(field)
	e.Str(v)
}

// required tracks which mandatory fields were seen in a record.
type required struct {
	id, productID, name, price, image, addedAt, quantity bool
}

func (r required) check(withQuantity bool) error {
	missing := ""
	switch {
	case !r.id:
		missing = "id"
	case !r.productID:
		missing = "productId"
	case !r.name:
		missing = "name"
	case !r.price:
		missing = "price"
	case !r.image:
		missing = "image"
	case !r.addedAt:
		missing = "addedAt"
	case withQuantity && !r.quantity:
		missing = "quantity"
	}
	if missing != "" {
		return errors.Errorf("missing field %q", missing)
	}
	return nil
}

func decodeLineItemField(d *jx.Decoder, key string, it *cart.LineItem, req *required) error {
	var err error
	switch key {
	case "id":
		it.ID, err = d.Str()
		req.id = true
	case "productId":
		it.ProductID, err = d.Str()
		req.productID = true
	case "name":
		it.Name, err = d.Str()
		req.name = true
	case "price":
		it.Price, err = decodePrice(d)
		req.price = true
	case "image":
		it.Image, err = d.Str()
		req.image = true
	case "addedAt":
		it.AddedAt, err = decodeTime(d)
		req.addedAt = true
	default:
		return d.Skip()
	}
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

// decodePrice accepts a JSON number or a numeric string. Exponent notation
// is expanded, so "5e2" decodes as 500.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s", d.Next())
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return cart.PlainPrice(v), nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func optStrDecode(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// decodeArray decodes a top-level array, calling elem for each element, and
// rejects trailing data.
func decodeArray(data []byte, elem func(d *jx.Decoder) error) error {
	data = bytes.TrimLeft(data, jsonSpace)
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return errors.Wrap(ErrMalformed, "expected array")
	}
	raw, err := d.Raw()
	if err != nil {
		return &malformedError{err: err}
	}
	// The decoder stops after the first value; anything but whitespace
	// behind it makes the whole text malformed.
	if len(bytes.TrimLeft(data[len(raw):], jsonSpace)) > 0 {
		return errors.Wrap(ErrMalformed, "trailing data")
	}

	i := 0
	if err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		if err := elem(d); err != nil {
			return errors.Wrapf(err, "item %d", i)
		}
		i++
		return nil
	}); err != nil {
		return &malformedError{err: err}
	}
	return nil
}

// malformedError matches ErrMalformed while keeping the decoder's cause.
type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return ErrMalformed.Error() + ": " + e.err.Error() }

func (e *malformedError) Unwrap() []error { return []error{ErrMalformed, e.err} }
