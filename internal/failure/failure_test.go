package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureMatchesKindSentinel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", Validation("create", errors.New("title is required")), ErrValidation},
		{"not found", NotFound("get", ""), ErrNotFound},
		{"transport", Transport("list", context.DeadlineExceeded), ErrTransport},
		{"server", Server("update", "boom"), ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
			for _, other := range []error{ErrValidation, ErrNotFound, ErrTransport, ErrServer} {
				if other != tt.want {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestTransportUnwrapsCause(t *testing.T) {
	err := Transport("list", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, "list: context deadline exceeded", err.Error())
}

func TestAsWrapsForeignErrors(t *testing.T) {
	assert.Nil(t, As("op", nil))

	f := As("refresh", errors.New("dial tcp: refused"))
	assert.Equal(t, KindTransport, f.Kind)
	assert.Equal(t, "refresh", f.Op)

	nf := NotFound("get", "")
	assert.Same(t, nf, As("other", fmt.Errorf("wrap: %w", nf)))
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "get: record not found", nf.Error())
}
