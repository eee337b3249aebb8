package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

func TestEmbedded(t *testing.T) {
	c, err := Embedded()
	require.NoError(t, err)

	ctx := context.Background()
	products, err := c.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, products)

	for _, p := range products {
		got, err := c.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
		assert.True(t, p.Price.Equal(got.Price))
		assert.False(t, p.Price.IsNegative())
	}
}

func TestGetByID_NotFound(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	_, err = c.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestList_ReturnsCopy(t *testing.T) {
	c, err := New([]product.Product{{ID: "1", Name: "Headphones", Price: decimal.NewFromInt(1)}})
	require.NoError(t, err)

	first, err := c.List(context.Background())
	require.NoError(t, err)
	first[0].Name = "changed"

	second, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Headphones", second[0].Name)
}

func TestNew_DuplicateID(t *testing.T) {
	_, err := New([]product.Product{{ID: "1"}, {ID: "1"}})
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	products, err := Parse([]byte(`[
		{"id":"1","name":"Headphones","price":199.99,"image":"h.jpg","rating":4.5},
		{"id":"2","name":"Shoes","price":"59.0","category":"Footwear"}
	]`))
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "Headphones", products[0].Name)
	assert.True(t, decimal.RequireFromString("199.99").Equal(products[0].Price))
	assert.Equal(t, "h.jpg", products[0].Image)
	assert.Equal(t, "Footwear", products[1].Category)
	assert.True(t, decimal.NewFromInt(59).Equal(products[1].Price))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not an array", input: `{"id":"1"}`},
		{name: "missing id", input: `[{"name":"x","price":1}]`},
		{name: "missing price", input: `[{"id":"1","name":"x"}]`},
		{name: "negative price", input: `[{"id":"1","price":-1}]`},
		{name: "bad price string", input: `[{"id":"1","price":"cheap"}]`},
		{name: "wrong type", input: `[{"id":1,"price":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
		})
	}
}
