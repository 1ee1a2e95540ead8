// Package ingress contains the sources that feed external data into
// an exchange ring as records.
package ingress

import (
	"context"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/FerroO2000/staffetta/internal/record"
)

// Record is the event envelope sources publish into the ring.
type Record = record.Record

// Publisher is the ring publisher sources write into.
type Publisher = exchange.Publisher[record.Record]

// Source is a producer that reads from an external system and
// publishes records into the ring.
type Source interface {
	// Init prepares the source.
	Init(ctx context.Context) error
	// Run publishes records until the context is canceled.
	Run(ctx context.Context) error
	// Close releases the source's resources.
	Close() error
}
