package config

import (
	"fmt"

	"github.com/FerroO2000/staffetta/internal/seq"
)

type ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// CheckNotNegative checks that the value is not negative.
// If it is, an anomaly is added to the anomaly collector and the value is set to the fallback.
func CheckNotNegative[T ordered](ac *AnomalyCollector, field string, actual *T, fallback T) {
	val := *actual
	if val < 0 {
		ac.add(field, "cannot be negative", val, fallback)
		*actual = fallback
	}
}

// CheckNotZero checks that the value is not zero.
// If it is, an anomaly is added to the anomaly collector and the value is set to the fallback.
func CheckNotZero[T ordered](ac *AnomalyCollector, field string, actual *T, fallback T) {
	val := *actual
	if val == 0 {
		ac.add(field, "cannot be zero", val, fallback)
		*actual = fallback
	}
}

// CheckNotGreater checks that the value is not greater than the target.
// If it is, an anomaly is added to the anomaly collector and the value is set to the target.
func CheckNotGreater[T ordered](ac *AnomalyCollector, field string, actual *T, target T) {
	val := *actual
	if val > target {
		ac.add(field, fmt.Sprintf("cannot be greater than %v", target), val, target)
		*actual = target
	}
}

// CheckPowerOfTwo checks that the value is a power of two.
// If it is not, an anomaly is added to the anomaly collector and the value
// is rounded up to the next power of two.
func CheckPowerOfTwo[T ordered](ac *AnomalyCollector, field string, actual *T) {
	val := *actual
	rounded := T(seq.CeilingPowerOfTwo(int64(val)))
	if val != rounded {
		ac.add(field, "must be a power of two", val, rounded)
		*actual = rounded
	}
}

// CheckNotEmpty checks that the value is not empty.
// If it is, an anomaly is added to the anomaly collector and the value is set to the fallback.
func CheckNotEmpty(ac *AnomalyCollector, field string, actual *string, fallback string) {
	val := *actual
	if val == "" {
		ac.add(field, "cannot be empty", val, fallback)
		*actual = fallback
	}
}

// CheckLen checks that the value is not empty.
// If it is, an anomaly is added to the anomaly collector and the value is set to the fallback.
func CheckLen[T any](ac *AnomalyCollector, field string, actual *[]T, fallback []T) {
	val := *actual
	if len(val) == 0 {
		ac.add(field, "cannot be empty", val, fallback)
		*actual = fallback
	}
}
