// Package telemetry contains the OpenTelemetry provider setup
// and the carriers used for trace propagation.
package telemetry

import (
	"github.com/segmentio/kafka-go"
)

// KafkaHeaderCarrier adapts kafka message headers to the text map
// carrier interface used by trace propagation.
type KafkaHeaderCarrier struct {
	headers []kafka.Header
}

// NewKafkaHeaderCarrier returns a carrier seeded with the given headers.
func NewKafkaHeaderCarrier(headers []kafka.Header) *KafkaHeaderCarrier {
	return &KafkaHeaderCarrier{headers: headers}
}

// Get returns the value of the header with the given key.
func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, header := range c.headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}

// Set sets the header with the given key, replacing any previous value.
func (c *KafkaHeaderCarrier) Set(key, value string) {
	for idx, header := range c.headers {
		if header.Key == key {
			c.headers[idx].Value = []byte(value)
			return
		}
	}

	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists the keys of all headers.
func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, header := range c.headers {
		keys = append(keys, header.Key)
	}
	return keys
}

// Headers returns the underlying kafka headers.
func (c *KafkaHeaderCarrier) Headers() []kafka.Header {
	return c.headers
}
