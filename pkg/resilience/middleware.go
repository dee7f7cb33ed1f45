package resilience

import "context"

// Operation is a unit of work guarded by the resilience layer. Document
// processing steps enter the layer as closures of this shape.
type Operation func(ctx context.Context) (interface{}, error)

// Middleware wraps an operation with additional behavior
type Middleware func(Operation) Operation

// Chain composes middlewares into one. The first middleware is the
// outermost: Chain(a, b)(op) runs a around b around op.
func Chain(middlewares ...Middleware) Middleware {
	return func(op Operation) Operation {
		for i := len(middlewares) - 1; i >= 0; i-- {
			op = middlewares[i](op)
		}
		return op
	}
}
