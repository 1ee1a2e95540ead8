package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CheckNotNegative(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	value := -5
	CheckNotNegative(ac, "Value", &value, 10)
	assert.Equal(10, value)
	assert.Len(ac.anomalies, 1)

	valid := 3
	CheckNotNegative(ac, "Valid", &valid, 10)
	assert.Equal(3, valid)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckNotZero(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	value := 0
	CheckNotZero(ac, "Value", &value, 7)
	assert.Equal(7, value)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckNotGreater(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	value := 100
	CheckNotGreater(ac, "Value", &value, 50)
	assert.Equal(50, value)
	assert.Len(ac.anomalies, 1)

	within := 30
	CheckNotGreater(ac, "Within", &within, 50)
	assert.Equal(30, within)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckPowerOfTwo(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	value := int64(1000)
	CheckPowerOfTwo(ac, "Value", &value)
	assert.Equal(int64(1024), value)
	assert.Len(ac.anomalies, 1)

	pow := int64(256)
	CheckPowerOfTwo(ac, "Pow", &pow)
	assert.Equal(int64(256), pow)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckNotEmpty(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	value := ""
	CheckNotEmpty(ac, "Value", &value, "fallback")
	assert.Equal("fallback", value)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckLen(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	var value []string
	CheckLen(ac, "Value", &value, []string{"fallback"})
	assert.Equal([]string{"fallback"}, value)
	assert.Len(ac.anomalies, 1)

	filled := []string{"keep"}
	CheckLen(ac, "Filled", &filled, []string{"fallback"})
	assert.Equal([]string{"keep"}, filled)
	assert.Len(ac.anomalies, 1)
}
