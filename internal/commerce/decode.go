package commerce

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/favorite"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

// The backend uses numeric ids; they are kept as strings.
func readID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(n), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s for id", d.Next())
	}
}

func readString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func readInt(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.Null:
		return 0, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(s)
	default:
		return d.Int()
	}
}

func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for amount", d.Next())
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// readTime accepts RFC 3339, zoneless ISO date-times (read as UTC) and the
// [year, month, day, hour, minute, second, nanos] array form.
func readTime(d *jx.Decoder) (time.Time, error) {
	switch d.Next() {
	case jx.Null:
		return time.Time{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errors.Errorf("unsupported time %q", s)
	case jx.Array:
		var parts []int
		if err := d.Arr(func(d *jx.Decoder) error {
			v, err := d.Int()
			parts = append(parts, v)
			return err
		}); err != nil {
			return time.Time{}, err
		}
		if len(parts) < 3 {
			return time.Time{}, errors.Errorf("time array too short: %v", parts)
		}
		for len(parts) < 7 {
			parts = append(parts, 0)
		}
		return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6], time.UTC), nil
	default:
		return time.Time{}, errors.Errorf("unexpected %s for time", d.Next())
	}
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = readID(d)
		case "name":
			p.Name, err = readString(d)
		case "price":
			p.Price, err = readDecimal(d)
		case "imageUrl", "image":
			var s string
			if s, err = readString(d); s != "" {
				p.ImageURL = s
			}
		case "description":
			p.Description, err = readString(d)
		case "stock":
			p.Stock, err = readInt(d)
		case "category":
			p.Category, err = readCategory(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return p, err
}

// readCategory accepts a plain name or a {"name": ...} object.
func readCategory(d *jx.Decoder) (string, error) {
	if d.Next() != jx.Object {
		return readString(d)
	}
	var name string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "name" {
			var err error
			name, err = readString(d)
			return err
		}
		return d.Skip()
	})
	return name, err
}

func decodeProducts(d *jx.Decoder) ([]product.Product, error) {
	if d.Next() != jx.Array {
		return nil, errors.Errorf("expected product array, got %s", d.Next())
	}
	products := []product.Product{}
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		products = append(products, p)
		return err
	})
	return products, err
}

// decodeCartItem reads a cart item, either {"product": {...}, "quantity": n}
// or the flat {"productId": id, "quantity": n}.
func decodeCartItem(d *jx.Decoder) (cart.Line, error) {
	var l cart.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var p product.Product
			if p, err = decodeProduct(d); err == nil {
				qty := l.Quantity
				l = cart.LineFor(p, qty)
			}
		case "productId":
			l.ProductID, err = readID(d)
		case "quantity":
			l.Quantity, err = readInt(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return l, err
}

type cartPayload struct {
	lines    []cart.Line
	hasItems bool
	// line is set when the payload is a single item.
	line *cart.Line
}

// decodeCart reads {"items": [...]}, a bare item array or a single item.
func decodeCart(d *jx.Decoder) (cartPayload, error) {
	var p cartPayload
	switch d.Next() {
	case jx.Array:
		p.hasItems = true
		err := d.Arr(func(d *jx.Decoder) error {
			l, err := decodeCartItem(d)
			p.lines = append(p.lines, l)
			return err
		})
		return p, err
	case jx.Object:
	default:
		return p, errors.Errorf("expected cart object, got %s", d.Next())
	}

	raw, err := d.Raw()
	if err != nil {
		return p, err
	}
	var isItem bool
	if err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() != jx.Array {
				return errors.Errorf("items: expected array, got %s", d.Next())
			}
			p.hasItems = true
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeCartItem(d)
				p.lines = append(p.lines, l)
				return err
			})
		case "product", "productId":
			isItem = true
		}
		return d.Skip()
	}); err != nil {
		return p, err
	}

	if !p.hasItems && isItem {
		l, err := decodeCartItem(jx.DecodeBytes(raw))
		if err != nil {
			return p, err
		}
		p.line = &l
	}
	if !p.hasItems && p.line == nil {
		return p, errors.New("cart has neither items nor product")
	}
	return p, nil
}

func decodeFavorite(d *jx.Decoder) (favorite.Entry, error) {
	var e favorite.Entry
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			e.ID, err = readID(d)
		case "product":
			if d.Next() == jx.Null {
				return d.Null()
			}
			e.Product, err = decodeProduct(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return e, err
}

// decodeFavorites requires an array; anything else is an invalid response.
func decodeFavorites(d *jx.Decoder) ([]favorite.Entry, error) {
	if d.Next() != jx.Array {
		return nil, errors.Errorf("expected favorites array, got %s", d.Next())
	}
	entries := []favorite.Entry{}
	err := d.Arr(func(d *jx.Decoder) error {
		e, err := decodeFavorite(d)
		entries = append(entries, e)
		return err
	})
	return entries, err
}

func decodeOrderItem(d *jx.Decoder) (order.Line, error) {
	var (
		l       order.Line
		current product.Product
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product":
			if d.Next() == jx.Null {
				return d.Null()
			}
			current, err = decodeProduct(d)
		case "productId":
			l.ProductID, err = readID(d)
		case "productName":
			l.Name, err = readString(d)
		case "productDescription":
			l.Description, err = readString(d)
		case "productImageUrl":
			l.ImageURL, err = readString(d)
		case "quantity":
			l.Quantity, err = readInt(d)
		case "unitPrice", "price":
			l.UnitPrice, err = readDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return l, err
	}

	// Snapshot fields win; the live product only fills what is missing.
	if current.ID != "" {
		l.ProductID = current.ID
	}
	if l.Name == "" {
		l.Name = current.Name
	}
	if l.Description == "" {
		l.Description = current.Description
	}
	if l.ImageURL == "" {
		l.ImageURL = current.ImageURL
	}
	return l, nil
}

func decodeOrder(d *jx.Decoder) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = readID(d)
		case "orderDate", "createdAt":
			o.CreatedAt, err = readTime(d)
		case "totalAmount", "total":
			o.Total, err = readDecimal(d)
		case "status":
			status, err = readString(d)
		case "orderItems", "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := decodeOrderItem(d)
				o.Lines = append(o.Lines, l)
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	o.Status = order.ParseStatus(status)
	return o, err
}

func decodeOrders(d *jx.Decoder) ([]order.Order, error) {
	if d.Next() != jx.Array {
		return nil, errors.Errorf("expected order array, got %s", d.Next())
	}
	orders := []order.Order{}
	err := d.Arr(func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		orders = append(orders, o)
		return err
	})
	return orders, err
}

// decodeUser reads a user object, optionally wrapped as {"user": {...}}.
func decodeUser(d *jx.Decoder) (session.Session, error) {
	var (
		s    session.Session
		role string
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			var inner session.Session
			if inner, err = decodeUser(d); err == nil {
				s, role = inner, string(inner.Role)
			}
		case "id":
			s.ID, err = readID(d)
		case "username", "name":
			var name string
			if name, err = readString(d); name != "" {
				s.Name = name
			}
		case "email":
			s.Email, err = readString(d)
		case "role":
			role, err = readString(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	s.Role = session.ParseRole(role)
	if err == nil && s.ID == "" {
		err = errors.New("user without id")
	}
	return s, err
}
