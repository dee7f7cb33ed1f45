package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tracingMiddleware(name string, trace *[]string) Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) (interface{}, error) {
			*trace = append(*trace, name+":before")
			result, err := next(ctx)
			*trace = append(*trace, name+":after")
			return result, err
		}
	}
}

func TestChain_Order(t *testing.T) {
	var trace []string

	op := func(ctx context.Context) (interface{}, error) {
		trace = append(trace, "op")
		return "done", nil
	}

	// The first middleware is the outermost
	wrapped := Chain(
		tracingMiddleware("outer", &trace),
		tracingMiddleware("inner", &trace),
	)(op)

	result, err := wrapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"outer:before", "inner:before", "op", "inner:after", "outer:after"}, trace)
}

func TestChain_Empty(t *testing.T) {
	invocations := 0
	op := func(ctx context.Context) (interface{}, error) {
		invocations++
		return 7, nil
	}

	// An empty chain is the identity
	result, err := Chain()(op)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 1, invocations)
}

func TestChain_ErrorPropagates(t *testing.T) {
	var trace []string
	boom := errors.New("boom")

	op := func(ctx context.Context) (interface{}, error) {
		return nil, boom
	}

	_, err := Chain(tracingMiddleware("outer", &trace))(op)(context.Background())
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"outer:before", "outer:after"}, trace)
}
