package commerce

import (
	"strconv"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

// isoMillis matches what browsers send for Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// writeID writes numeric ids as numbers, the way the backend expects
// them, and anything else as a string.
func writeID(e *jx.Encoder, id string) {
	if v, err := strconv.ParseInt(id, 10, 64); err == nil {
		e.Int64(v)
		return
	}
	e.Str(id)
}

func writeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func writeProductRef(e *jx.Encoder, productID string) {
	e.ObjStart()
	e.FieldStart("id")
	writeID(e, productID)
	e.ObjEnd()
}

func encodeFavoriteRequest(productID string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("product")
	writeProductRef(&e, productID)
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrderRequest(d order.Draft) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderDate")
	e.Str(d.CreatedAt.UTC().Format(isoMillis))
	e.FieldStart("totalAmount")
	writeDecimal(&e, d.Total)
	e.FieldStart("orderItems")
	e.ArrStart()
	for _, l := range d.Lines {
		e.ObjStart()
		e.FieldStart("product")
		writeProductRef(&e, l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("price")
		writeDecimal(&e, l.UnitPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeStatusRequest(s order.Status) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(s.LegacyName())
	e.ObjEnd()
	return e.Bytes()
}

func encodeLogin(c session.Credentials) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("email")
	e.Str(c.Email)
	e.FieldStart("password")
	e.Str(c.Password)
	e.ObjEnd()
	return e.Bytes()
}

func encodeRegister(r session.Registration) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("username")
	e.Str(r.Name)
	e.FieldStart("email")
	e.Str(r.Email)
	e.FieldStart("password")
	e.Str(r.Password)
	e.ObjEnd()
	return e.Bytes()
}
