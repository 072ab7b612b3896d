package batcher

import "context"

// ctxKey scopes a batch to its owner, so a batch opened for one chain
// never captures calls made to another.
type ctxKey struct {
	owner interface{}
}

// WithBatch returns a copy of ctx carrying b for owner. owner must be comparable.
func WithBatch(ctx context.Context, owner interface{}, b *Batch) context.Context {
	return context.WithValue(ctx, ctxKey{owner: owner}, b)
}

// FromContext returns the batch active for owner, or nil
func FromContext(ctx context.Context, owner interface{}) *Batch {
	b, _ := ctx.Value(ctxKey{owner: owner}).(*Batch)
	return b
}
