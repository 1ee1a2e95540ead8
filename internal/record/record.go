// Package record contains the reusable event envelope carried by the
// exchange ring between ingress sources and egress sinks.
package record

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Record is the event payload stored in a ring slot. Slots are
// allocated once and reused, so setters copy bytes into buffers owned
// by the record and Reset keeps their capacity.
type Record struct {
	payload []byte
	key     []byte
	topic   string

	receiveTime time.Time
	timestamp   time.Time

	span trace.SpanContext
}

// New returns an empty record.
func New() *Record {
	return &Record{}
}

// Reset clears the record for reuse, keeping the payload buffers.
func (r *Record) Reset() {
	r.payload = r.payload[:0]
	r.key = r.key[:0]
	r.topic = ""

	r.receiveTime = time.Time{}
	r.timestamp = time.Time{}

	r.span = trace.SpanContext{}
}

// SetPayload copies the given bytes into the record.
func (r *Record) SetPayload(payload []byte) {
	r.payload = append(r.payload[:0], payload...)
}

// Payload returns the record's payload. The returned slice is only
// valid until the slot is republished.
func (r *Record) Payload() []byte {
	return r.payload
}

// SetKey copies the given bytes into the record's key.
func (r *Record) SetKey(key []byte) {
	r.key = append(r.key[:0], key...)
}

// Key returns the record's key.
func (r *Record) Key() []byte {
	return r.key
}

// SetTopic sets the logical stream the record belongs to.
func (r *Record) SetTopic(topic string) {
	r.topic = topic
}

// Topic returns the logical stream the record belongs to.
func (r *Record) Topic() string {
	return r.topic
}

// SetReceiveTime sets the time the record entered the process.
func (r *Record) SetReceiveTime(receiveTime time.Time) {
	r.receiveTime = receiveTime
}

// ReceiveTime returns the time the record entered the process.
func (r *Record) ReceiveTime() time.Time {
	return r.receiveTime
}

// SetTimestamp sets the timestamp of the record.
// It may be different from the receive time.
func (r *Record) SetTimestamp(timestamp time.Time) {
	r.timestamp = timestamp
}

// Timestamp returns the timestamp of the record.
func (r *Record) Timestamp() time.Time {
	return r.timestamp
}

// SaveSpan saves the trace span of the record.
func (r *Record) SaveSpan(span trace.Span) {
	r.span = span.SpanContext()
}

// LoadSpanContext loads the trace of the record into the provided context.
func (r *Record) LoadSpanContext(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(ctx, r.span)
}

// CopyFrom deep-copies another record into this one.
func (r *Record) CopyFrom(other *Record) {
	r.SetPayload(other.payload)
	r.SetKey(other.key)
	r.topic = other.topic

	r.receiveTime = other.receiveTime
	r.timestamp = other.timestamp

	r.span = other.span
}
