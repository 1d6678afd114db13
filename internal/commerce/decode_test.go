package commerce

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

func TestDecodeProduct(t *testing.T) {
	p, err := decodeProduct(jx.DecodeBytes([]byte(`{
		"id": 12, "name": "Lamp", "price": 19.90, "image": "lamp.png",
		"description": "warm", "category": {"id": 1, "name": "Home"},
		"seller": {"id": 3}, "stock": 4
	}`)))
	require.NoError(t, err)

	assert.Equal(t, "12", p.ID)
	assert.Equal(t, "Lamp", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("19.9")))
	assert.Equal(t, "lamp.png", p.ImageURL)
	assert.Equal(t, "Home", p.Category)
	assert.Equal(t, 4, p.Stock)
}

func TestDecodeCart(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLines int
		wantLine  bool
		wantErr   bool
	}{
		{
			name:      "cart with items",
			input:     `{"id": 1, "items": [{"id": 5, "product": {"id": 7, "name": "A", "price": 2}, "quantity": 3}], "totalPrice": 6}`,
			wantLines: 1,
		},
		{
			name:      "empty cart",
			input:     `{"id": 1, "items": []}`,
			wantLines: 0,
		},
		{
			name:      "bare array",
			input:     `[{"productId": 7, "quantity": 1}]`,
			wantLines: 1,
		},
		{
			name:     "single item",
			input:    `{"quantity": 2, "product": {"id": "7", "price": "1.5"}}`,
			wantLine: true,
		},
		{name: "string", input: `"nope"`, wantErr: true},
		{name: "unrelated object", input: `{"ok": true}`, wantErr: true},
		{name: "items not array", input: `{"items": {}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodeCart(jx.DecodeBytes([]byte(tt.input)))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, p.lines, tt.wantLines)
			assert.Equal(t, tt.wantLine, p.line != nil)
		})
	}
}

func TestDecodeCartItem_QuantityBeforeProduct(t *testing.T) {
	l, err := decodeCartItem(jx.DecodeBytes([]byte(`{"quantity": 2, "product": {"id": 7, "name": "A", "price": 2.5}}`)))
	require.NoError(t, err)

	assert.Equal(t, "7", l.ProductID)
	assert.Equal(t, 2, l.Quantity)
	assert.True(t, l.Subtotal().Equal(decimal.NewFromInt(5)))
}

func TestDecodeFavorites_RequiresArray(t *testing.T) {
	_, err := decodeFavorites(jx.DecodeBytes([]byte(`{"id": 1}`)))
	require.Error(t, err)

	entries, err := decodeFavorites(jx.DecodeBytes([]byte(`[{"id": 9, "product": {"id": 7, "name": "A"}}]`)))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "9", entries[0].ID)
	assert.Equal(t, "7", entries[0].Product.ID)
}

func TestDecodeOrder(t *testing.T) {
	o, err := decodeOrder(jx.DecodeBytes([]byte(`{
		"id": 31,
		"orderDate": "2024-06-01T10:30:00",
		"totalAmount": 45.5,
		"status": "KARGODA",
		"orderItems": [
			{"id": 1, "product": null, "productName": "Gone", "quantity": 1, "unitPrice": 40.5},
			{"id": 2, "product": {"id": 8, "name": "Live", "imageUrl": "x.png"}, "productName": "Snapshot", "quantity": 2, "unitPrice": 2.5}
		]
	}`)))
	require.NoError(t, err)

	assert.Equal(t, "31", o.ID)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), o.CreatedAt)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, order.StatusInTransit, o.Status)
	require.Len(t, o.Lines, 2)

	assert.Empty(t, o.Lines[0].ProductID, "deleted product keeps its snapshot")
	assert.Equal(t, "Gone", o.Lines[0].Name)

	assert.Equal(t, "8", o.Lines[1].ProductID)
	assert.Equal(t, "Snapshot", o.Lines[1].Name, "snapshot name wins over the live product")
	assert.Equal(t, "x.png", o.Lines[1].ImageURL)
}

func TestReadTime(t *testing.T) {
	want := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	tests := []string{
		`"2024-06-01T10:30:00Z"`,
		`"2024-06-01T10:30:00"`,
		`"2024-06-01T10:30:00.000"`,
		`[2024, 6, 1, 10, 30]`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			got, err := readTime(jx.DecodeBytes([]byte(input)))
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	_, err := readTime(jx.DecodeBytes([]byte(`"yesterday"`)))
	require.Error(t, err)
}

func TestDecodeUser(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  session.Session
	}{
		{
			name:  "plain",
			input: `{"id": 4, "username": "ayse", "email": "a@x", "role": "SELLER", "password": null}`,
			want:  session.Session{ID: "4", Name: "ayse", Email: "a@x", Role: session.RoleSeller},
		},
		{
			name:  "wrapped",
			input: `{"user": {"id": 4, "username": "ayse"}, "token": "t"}`,
			want:  session.Session{ID: "4", Name: "ayse", Role: session.RoleUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeUser(jx.DecodeBytes([]byte(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := decodeUser(jx.DecodeBytes([]byte(`{"username": "x"}`)))
	require.Error(t, err)
}

func TestEncodeOrderRequest(t *testing.T) {
	d := order.Draft{
		CreatedAt: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
		Total:     decimal.RequireFromString("12.50"),
		Lines: []order.Line{
			{ProductID: "7", Quantity: 2, UnitPrice: decimal.RequireFromString("6.25")},
			{ProductID: "sku-x", Quantity: 1, UnitPrice: decimal.Zero},
		},
	}

	assert.JSONEq(t, `{
		"orderDate": "2024-06-01T10:30:00.000Z",
		"totalAmount": 12.5,
		"orderItems": [
			{"product": {"id": 7}, "quantity": 2, "price": 6.25},
			{"product": {"id": "sku-x"}, "quantity": 1, "price": 0}
		]
	}`, string(encodeOrderRequest(d)))
}

func TestEncodeStatusRequest(t *testing.T) {
	assert.JSONEq(t, `{"status": "KARGOYA_VERILDI"}`, string(encodeStatusRequest(order.StatusShipped)))
}
