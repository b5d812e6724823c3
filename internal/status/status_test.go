package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewForProcessing(t *testing.T) {
	view := ViewFor(Processing, 123456)
	require.Len(t, view.Actions, 1)
	assert.Equal(t, "check_pdf_status:123456", view.Actions[0].Token)
	assert.NotEmpty(t, view.Actions[0].Label)
	assert.NotEmpty(t, view.Message)
}

func TestViewForNoActions(t *testing.T) {
	tests := map[string]Status{
		"completed":   Completed,
		"failed":      Failed,
		"unavailable": Unavailable,
		"error":       Error,
		"unknown":     Status("SOMETHING_ELSE"),
		"empty":       Status(""),
	}

	for name, st := range tests {
		t.Run(name, func(t *testing.T) {
			view := ViewFor(st, 42)
			assert.Empty(t, view.Actions)
			assert.NotEmpty(t, view.Message)
		})
	}
}

func TestOutageStatusesShareMessage(t *testing.T) {
	unavailable := ViewFor(Unavailable, 1)
	errored := ViewFor(Error, 1)
	unknown := ViewFor(Status("???"), 1)
	assert.Equal(t, unavailable.Message, errored.Message)
	assert.Equal(t, unavailable.Message, unknown.Message)
}
