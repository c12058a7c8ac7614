package ipc

import (
	"context"

	"github.com/railmon/powerstats/internal/parcel"
)

// Caller lets a service stub transact back to the peer that invoked it,
// for example to deliver a result to a callback object the peer passed by
// reference.
type Caller interface {
	Transact(ctx context.Context, target Handle, code uint32, w *parcel.Writer) (*parcel.Reader, error)
	TransactOneway(ctx context.Context, target Handle, code uint32, w *parcel.Writer) error
}

type callerKey struct{}

// ContextWithCaller returns ctx carrying c. Connection dispatch attaches
// the originating connection before invoking a stub.
func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the connection a stub was invoked over.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
