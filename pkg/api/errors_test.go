package api_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/pkg/api"
)

func TestPartialDispatchError(t *testing.T) {
	boom := errors.New("boom")
	err := &api.PartialDispatchError{
		Topic:   "data.received",
		TraceID: "t1",
		Failures: []api.SubscriberError{
			{Step: "first", Err: boom},
			{Step: "second", Err: errors.New("bang")},
		},
	}

	assert.Contains(t, err.Error(), "data.received")
	assert.Contains(t, err.Error(), "first: boom")
	assert.Contains(t, err.Error(), "second: bang")
	assert.Equal(t, []api.Name{"first", "second"}, err.FailedSteps())
}

func TestSubscriberErrorUnwrap(t *testing.T) {
	boom := errors.New("boom")
	sub := &api.SubscriberError{Step: "first", Err: boom}
	assert.ErrorIs(t, sub, boom)
	assert.Equal(t, "first: boom", sub.Error())
}
