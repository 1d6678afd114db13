// Command kartctl is a terminal storefront: it keeps one session, its cart,
// favorites and orders in a state directory between invocations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/commerce"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage/file"
	"github.com/xenking/kart-storefront/internal/storefront"
)

type config struct {
	StateDir string `usage:"Directory holding the session and local state (default: user config dir)" flag:"state-dir"`
	Offline  bool   `default:"false" usage:"Keep cart, favorites and orders locally only" flag:"offline"`
	Verbose  bool   `default:"false" usage:"Log to stderr" flag:"verbose"`
	Commerce struct {
		BaseURL string        `default:"http://localhost:8080/api" usage:"Commerce API base URL" flag:"commerce-url"`
		Timeout time.Duration `default:"10s" usage:"Commerce request timeout" flag:"commerce-timeout"`
	}
	Cart struct {
		Rollback string `default:"restore" usage:"Failed add rollback: restore or remove" flag:"cart-rollback"`
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "kartctl:", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string) error {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "KART",
		SkipFiles:        true,
		AllowUnknownEnvs: true,
		Args:             argv,
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}
	args := loader.Flags().Args()
	if len(args) == 0 {
		usage(os.Stderr)
		return errors.New("no command")
	}

	lg := zap.NewNop()
	if cfg.Verbose {
		var err error
		if lg, err = zap.NewDevelopment(); err != nil {
			return errors.Wrap(err, "logger")
		}
		defer func() { _ = lg.Sync() }()
	}
	ctx = zctx.Base(ctx, lg)

	if cfg.StateDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return errors.Wrap(err, "locate config dir")
		}
		cfg.StateDir = filepath.Join(dir, "kartctl")
	}
	store, err := file.New(cfg.StateDir)
	if err != nil {
		return errors.Wrap(err, "open state dir")
	}

	client, err := commerce.New(cfg.Commerce.BaseURL, commerce.WithTimeout(cfg.Commerce.Timeout))
	if err != nil {
		return errors.Wrap(err, "commerce client")
	}
	rollback, err := cart.ParseRollbackPolicy(cfg.Cart.Rollback)
	if err != nil {
		return err
	}

	var remote storefront.Remote = client
	if cfg.Offline {
		remote = nil
	}
	bundle, err := storefront.NewBundle(store, remote, storefront.Config{
		Cart: cart.Options{Rollback: rollback},
	})
	if err != nil {
		return err
	}

	provider := session.NewProvider(client, store)
	if _, err := provider.Restore(ctx); err != nil {
		return errors.Wrap(err, "restore session")
	}

	c := &cli{
		out:      os.Stdout,
		errOut:   os.Stderr,
		provider: provider,
		bundle:   bundle,
		catalog:  client,
		desk:     order.NewDesk(client),
	}
	return c.dispatch(ctx, args[0], args[1:])
}
