package cart

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-storefront/internal/domain/notice"
)

// RollbackPolicy decides how a failed increment of an existing line is
// compensated. A failed insert always removes the inserted line.
type RollbackPolicy string

const (
	// RollbackRestore puts the line back to its quantity before the add.
	RollbackRestore RollbackPolicy = "restore"
	// RollbackRemove drops the whole line, discarding quantity held before
	// the add.
	RollbackRemove RollbackPolicy = "remove"
)

// ParseRollbackPolicy parses a configured policy name. Empty selects
// RollbackRestore.
func ParseRollbackPolicy(s string) (RollbackPolicy, error) {
	switch p := RollbackPolicy(s); p {
	case "":
		return RollbackRestore, nil
	case RollbackRestore, RollbackRemove:
		return p, nil
	default:
		return "", errors.Errorf("unknown rollback policy %q", s)
	}
}

// RemovalPolicy decides what happens locally when a remote removal fails.
type RemovalPolicy int

const (
	// RemovalIsAlwaysLocal keeps the line removed, so a deleted line never
	// reappears.
	RemovalIsAlwaysLocal RemovalPolicy = iota
	// RemovalRollsBack reinserts the line at its previous position.
	RemovalRollsBack
)

// Options configure a Manager. The zero value is usable.
type Options struct {
	Rollback      RollbackPolicy
	Removal       RemovalPolicy
	Notifier      notice.Notifier
	MeterProvider metric.MeterProvider
}
