package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/favorite"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storefront"
)

type desk interface {
	Orders(ctx context.Context, sess *session.Session) ([]order.Order, error)
	Advance(ctx context.Context, sess *session.Session, orderID string, next order.Status) (*order.Order, error)
}

type cli struct {
	out, errOut io.Writer

	provider *session.Provider
	bundle   *storefront.Bundle
	catalog  product.Catalog
	desk     desk
}

type command struct {
	args string
	help string
	min  int
}

// handler runs a command for the active session, nil when signed out.
type handler func(ctx context.Context, sess *session.Session, args []string) error

var commands = map[string]command{
	"login":    {args: "<email> <password>", help: "sign in", min: 2},
	"register": {args: "<name> <email> <password>", help: "create an account and sign in", min: 3},
	"logout":   {help: "sign out"},
	"whoami":   {help: "show the active session"},

	"products": {help: "list the catalog"},

	"cart":   {help: "show the cart"},
	"add":    {args: "<product-id>", help: "add one unit to the cart", min: 1},
	"remove": {args: "<product-id>", help: "remove a line from the cart", min: 1},
	"qty":    {args: "<product-id> <delta>", help: "change a line quantity, never below one", min: 2},
	"clear":  {help: "empty the cart"},

	"favorites": {help: "list favorites"},
	"fav":       {args: "<product-id>", help: "add a favorite", min: 1},
	"unfav":     {args: "<product-id>", help: "remove a favorite", min: 1},

	"orders":   {help: "list orders"},
	"checkout": {help: "order the cart contents"},
	"rm-order": {args: "<order-id>", help: "delete an order", min: 1},

	"seller-orders": {help: "list orders of your products (seller, admin)"},
	"status":        {args: "<order-id> <status>", help: "move an order to the next status (seller, admin)", min: 2},
}

// handlers binds every command in commands to c.
func (c *cli) handlers() map[string]handler {
	return map[string]handler{
		"login":         c.login,
		"register":      c.register,
		"logout":        c.logout,
		"whoami":        c.whoami,
		"products":      c.products,
		"cart":          c.showCart,
		"add":           c.add,
		"remove":        c.remove,
		"qty":           c.qty,
		"clear":         c.clear,
		"favorites":     c.favorites,
		"fav":           c.fav,
		"unfav":         c.unfav,
		"orders":        c.orders,
		"checkout":      c.checkout,
		"rm-order":      c.rmOrder,
		"seller-orders": c.sellerOrders,
		"status":        c.status,
	}
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: kartctl [flags] <command> [args]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(tw, "  %s %s\t%s\n", name, cmd.args, cmd.help)
	}
	_ = tw.Flush()
}

func (c *cli) dispatch(ctx context.Context, name string, args []string) error {
	cmd, ok := commands[name]
	run, bound := c.handlers()[name]
	if !ok || !bound {
		usage(c.errOut)
		return errors.Errorf("unknown command %q", name)
	}
	if len(args) < cmd.min {
		return errors.Errorf("usage: kartctl %s %s", name, cmd.args)
	}
	sess := c.provider.Current()
	if err := run(ctx, sess, args); err != nil {
		return err
	}
	c.flushNotices()
	return nil
}

// flushNotices prints failures the managers absorbed during this run.
func (c *cli) flushNotices() {
	for _, n := range c.bundle.Notices.List() {
		fmt.Fprintf(c.errOut, "%s: %s\n", n.Level, n.Message)
		c.bundle.Notices.Dismiss(n.ID)
	}
}

func (c *cli) login(ctx context.Context, _ *session.Session, args []string) error {
	sess, err := c.provider.Login(ctx, session.Credentials{Email: args[0], Password: args[1]})
	if err != nil {
		return err
	}
	c.bundle.Reload(ctx, sess)
	fmt.Fprintf(c.out, "Signed in as %s (%s)\n", sess.Name, sess.Role)
	return nil
}

func (c *cli) register(ctx context.Context, _ *session.Session, args []string) error {
	sess, err := c.provider.Register(ctx, session.Registration{Name: args[0], Email: args[1], Password: args[2]})
	if err != nil {
		return err
	}
	c.bundle.Reload(ctx, sess)
	fmt.Fprintf(c.out, "Registered and signed in as %s\n", sess.Name)
	return nil
}

func (c *cli) logout(ctx context.Context, _ *session.Session, _ []string) error {
	if err := c.provider.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out")
	return nil
}

func (c *cli) whoami(_ context.Context, sess *session.Session, _ []string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s <%s> id=%s role=%s\n", sess.Name, sess.Email, sess.ID, sess.Role)
	return nil
}

func (c *cli) products(ctx context.Context, _ *session.Session, _ []string) error {
	products, err := c.catalog.Products(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Category, p.Price.StringFixed(2), p.Stock)
	}
	return tw.Flush()
}

func (c *cli) showCart(ctx context.Context, sess *session.Session, _ []string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	c.bundle.Cart.Lines(ctx, sess)
	return printCart(c.out, c.bundle.Cart.Snapshot())
}

func printCart(w io.Writer, st cart.State) error {
	if st.Empty() {
		_, err := fmt.Fprintln(w, "Cart is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tUNIT\tSUBTOTAL")
	for _, l := range st.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", l.ProductID, l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t\tTOTAL\t%s\n", st.Total().StringFixed(2))
	return tw.Flush()
}

func (c *cli) lookup(ctx context.Context, id string) (product.Product, error) {
	p, err := c.catalog.Product(ctx, id)
	if err != nil {
		return product.Product{}, err
	}
	return *p, nil
}

func (c *cli) add(ctx context.Context, sess *session.Session, args []string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	p, err := c.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	if err := c.bundle.Cart.AddToCart(ctx, sess, p); err != nil {
		return err
	}
	return printCart(c.out, c.bundle.Cart.Snapshot())
}

func (c *cli) remove(ctx context.Context, sess *session.Session, args []string) error {
	if err := c.bundle.Cart.RemoveFromCart(ctx, sess, args[0]); err != nil {
		return err
	}
	return printCart(c.out, c.bundle.Cart.Snapshot())
}

func (c *cli) qty(ctx context.Context, sess *session.Session, args []string) error {
	delta, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Errorf("delta %q is not an integer", args[1])
	}
	if err := c.bundle.Cart.ChangeQuantity(ctx, sess, args[0], delta); err != nil {
		return err
	}
	return printCart(c.out, c.bundle.Cart.Snapshot())
}

func (c *cli) clear(ctx context.Context, sess *session.Session, _ []string) error {
	if err := c.bundle.Cart.ClearCart(ctx, sess); err != nil {
		return err
	}
	return printCart(c.out, c.bundle.Cart.Snapshot())
}

func printFavorites(w io.Writer, st favorite.State) error {
	if len(st.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No favorites")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tPRICE")
	for _, e := range st.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Product.ID, e.Product.Name, e.Product.Price.StringFixed(2))
	}
	return tw.Flush()
}

func (c *cli) favorites(ctx context.Context, sess *session.Session, _ []string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	return printFavorites(c.out, c.bundle.Favorites.Load(ctx, sess))
}

func (c *cli) fav(ctx context.Context, sess *session.Session, args []string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	p, err := c.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	if err := c.bundle.Favorites.AddToFavorites(ctx, sess, p); err != nil {
		return err
	}
	return printFavorites(c.out, c.bundle.Favorites.Snapshot())
}

func (c *cli) unfav(ctx context.Context, sess *session.Session, args []string) error {
	if err := c.bundle.Favorites.RemoveFromFavorites(ctx, sess, args[0]); err != nil {
		return err
	}
	return printFavorites(c.out, c.bundle.Favorites.Snapshot())
}

func printOrders(w io.Writer, orders []order.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tDATE\tITEMS\tTOTAL\tSTATUS\tPROGRESS")
	for _, o := range orders {
		items := 0
		for _, l := range o.Lines {
			items += l.Quantity
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d%%\n",
			o.ID, o.CreatedAt.Local().Format("2006-01-02 15:04"), items, o.Total.StringFixed(2), o.Status, o.Progress())
	}
	return tw.Flush()
}

func (c *cli) orders(ctx context.Context, sess *session.Session, _ []string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	return printOrders(c.out, c.bundle.Orders.Load(ctx, sess).Orders)
}

func (c *cli) checkout(ctx context.Context, sess *session.Session, _ []string) error {
	rc, err := c.bundle.Checkout.Purchase(ctx, sess)
	if err != nil {
		return err
	}
	if rc.Order == nil {
		return errors.New("order was not placed")
	}
	fmt.Fprintf(c.out, "Order %s placed, total %s\n", rc.Order.ID, rc.Order.Total.StringFixed(2))
	if !rc.CartCleared {
		fmt.Fprintln(c.out, "The server cart could not be emptied; run 'kartctl clear' to retry")
	}
	return nil
}

func (c *cli) rmOrder(ctx context.Context, sess *session.Session, args []string) error {
	if err := c.bundle.Orders.RemoveOrder(ctx, sess, args[0]); err != nil {
		return err
	}
	return printOrders(c.out, c.bundle.Orders.Snapshot().Orders)
}

func (c *cli) sellerOrders(ctx context.Context, sess *session.Session, _ []string) error {
	orders, err := c.desk.Orders(ctx, sess)
	if err != nil {
		return err
	}
	return printOrders(c.out, orders)
}

func (c *cli) status(ctx context.Context, sess *session.Session, args []string) error {
	next := order.ParseStatus(args[1])
	if !next.Known() {
		return errors.Errorf("unknown status %q", args[1])
	}
	o, err := c.desk.Advance(ctx, sess, args[0], next)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Order %s is now %s (%d%%)\n", o.ID, o.Status, o.Progress())
	return nil
}
