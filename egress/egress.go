// Package egress contains the sinks that deliver records consumed
// from an exchange ring to external systems.
package egress

import (
	"context"

	"github.com/FerroO2000/staffetta/internal/record"
	"github.com/FerroO2000/staffetta/processor"
)

// Record is the event envelope sinks consume from the ring.
type Record = record.Record

// Sink is a consumer that delivers records to an external system.
// A sink is initialized before being attached to an exchange and
// closed after the exchange is halted.
type Sink interface {
	processor.Handler[record.Record]

	// Init prepares the sink.
	Init(ctx context.Context) error
	// Close releases the sink's resources.
	Close() error
}
