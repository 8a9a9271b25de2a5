package simulation

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/entity"
)

// Renderer is notified whenever an entity's visible state changed. RequestRedraw must not block and may be
// called from any goroutine, including with the entity's state lock released.
type Renderer interface {
	// RequestRedraw asks for the region between the two positions of the entity to be repainted.
	RequestRedraw(h entity.Handle, from, to mgl64.Vec2)
}

// NopRenderer is a Renderer that ignores every request.
type NopRenderer struct{}

// RequestRedraw ...
func (NopRenderer) RequestRedraw(entity.Handle, mgl64.Vec2, mgl64.Vec2) {}

type renderContextKey struct{}

// RenderContext marks the context passed as belonging to the render loop. Actions must never be invoked
// with such a context, since the render loop would then wait on the steps it is supposed to paint.
func RenderContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, renderContextKey{}, true)
}

// IsRenderContext returns true if the context passed was derived from one created by RenderContext.
func IsRenderContext(ctx context.Context) bool {
	v, _ := ctx.Value(renderContextKey{}).(bool)
	return v
}
