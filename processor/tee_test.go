package processor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_TeeHandler(t *testing.T) {
	assert := assert.New(t)

	first := &recordingHandler{}
	second := &recordingHandler{}
	third := &recordingHandler{}

	tee := NewTeeHandler(nil, Handler[int64](first), second, third)

	tee.OnStart()
	defer tee.OnShutdown()

	event := int64(42)
	assert.NoError(tee.OnEvent(&event, 0, false))

	event = 43
	assert.NoError(tee.OnEvent(&event, 1, true))

	for _, handler := range []*recordingHandler{first, second, third} {
		values, sequences, batchEnds := handler.snapshot()

		assert.Equal([]int64{42, 43}, values)
		assert.Equal([]int64{0, 1}, sequences)
		assert.Equal(1, batchEnds)

		assert.True(handler.started.Load())
	}

	assert.Equal(int64(2), tee.fannedEvents.Load())
}

func Test_TeeHandler_ErrorsJoined(t *testing.T) {
	assert := assert.New(t)

	firstErr := errors.New("first failed")
	secondErr := errors.New("second failed")

	failing := &recordingHandler{failOn: 5, handlerErr: firstErr}
	alsoFailing := &recordingHandler{failOn: 5, handlerErr: secondErr}
	healthy := &recordingHandler{}

	tee := NewTeeHandler(&TeeConfig{Name: "failing_tee"}, Handler[int64](failing), alsoFailing, healthy)

	event := int64(1)
	err := tee.OnEvent(&event, 5, true)

	assert.ErrorIs(err, firstErr)
	assert.ErrorIs(err, secondErr)

	// A failing sibling does not hide the event from the others.
	values, _, _ := healthy.snapshot()
	assert.Equal([]int64{1}, values)
}
