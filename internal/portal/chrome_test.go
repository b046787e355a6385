package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitStateSettled(t *testing.T) {
	tests := []struct {
		name  string
		state submitState
		want  bool
	}{
		{"full reload idle", submitState{Stamp: false, Idle: true}, true},
		{"full reload loading", submitState{Stamp: false, Idle: false}, false},
		{"partial postback finished", submitState{Stamp: true, AsyncDone: true, Idle: true}, true},
		{"partial postback in flight", submitState{Stamp: true, AsyncDone: true, Idle: false}, false},
		{"nothing happened yet", submitState{Stamp: true, Idle: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.settled())
		})
	}
}

func TestSubmitStateExprReportsIdle(t *testing.T) {
	assert.Contains(t, submitStateExpr, "asyncDone: window.__ewbAsyncDone === true")
	assert.Contains(t, submitStateExpr, idleExpr)
	assert.Contains(t, stampExpr, "add_endRequest")
}
