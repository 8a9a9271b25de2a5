// Package canvas is a headless render surface. It collects the regions entities changed since the last
// frame and turns them, together with a snapshot of every tracked entity, into frames that a display or
// a remote client can paint.
package canvas

import (
	"context"
	"errors"
	"image/color"
	"time"

	"github.com/chewxy/math32"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/assert"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/omath"
	"github.com/oomph-ac/turtle/simulation"
	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// SpriteMargin is the padding in pixels added around every redraw request so that the sprite, its status
// bubble and the end caps of its trail are covered.
const SpriteMargin = 48

// StateSource gives read access to entity state. *simulation.Simulator implements it.
type StateSource interface {
	View(h entity.Handle, fn func(st *entity.State)) error
}

// Sprite is the render snapshot of one entity.
type Sprite struct {
	Handle    entity.Handle `json:"handle"`
	Location  mgl32.Vec2    `json:"location"`
	Heading   float32       `json:"heading"`
	Color     color.RGBA    `json:"color"`
	Thickness float32       `json:"thickness"`
	PenDown   bool          `json:"pen_down"`
	PathType  string        `json:"path_type"`
	Status    string        `json:"status,omitempty"`
	Filling   bool          `json:"filling,omitempty"`
	// Trail holds the positions the entity passed since the previous frame, oldest first, for as long as
	// its pen was down.
	Trail []mgl32.Vec2 `json:"trail,omitempty"`
	// From is the position the trail of the previous frame ended at, so that both trails can be joined.
	From *mgl32.Vec2 `json:"from,omitempty"`
	// Gap is set if the history overflowed between two frames. From is then the oldest position retained.
	Gap bool `json:"gap,omitempty"`
}

// Rect is an integer pixel region. Max is exclusive.
type Rect struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// Frame is everything needed to repaint the canvas once.
type Frame struct {
	Seq     uint64   `json:"seq"`
	Dirty   []Rect   `json:"dirty"`
	Sprites []Sprite `json:"sprites"`
}

// Canvas tracks entities in paint order and accumulates the regions that need repainting. It implements
// simulation.Renderer.
type Canvas struct {
	log *logrus.Logger

	width, height int
	bounds        cube.BBox

	mu deadlock.Mutex
	// sprites holds the tracked handles in paint order, mapped to the last history sequence painted.
	sprites *orderedmap.OrderedMap[entity.Handle, uint64]
	dirty   []cube.BBox
	frames  uint64
}

// New creates a canvas of the size passed.
func New(width, height int, log *logrus.Logger) *Canvas {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Canvas{
		log:     log,
		width:   width,
		height:  height,
		bounds:  cube.Box(0, 0, -1, float32(width), float32(height), 1),
		sprites: orderedmap.NewOrderedMap[entity.Handle, uint64](),
	}
}

// Size returns the width and height of the canvas.
func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// Track adds the entity on top of the paint order. Tracking an entity again moves it to the top.
func (c *Canvas) Track(h entity.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, _ := c.sprites.Get(h)
	c.sprites.Delete(h)
	c.sprites.Set(h, seq)
	c.invalidate()
}

// Untrack removes the entity from the canvas.
func (c *Canvas) Untrack(h entity.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sprites.Delete(h) {
		c.invalidate()
	}
}

// Tracked returns the tracked handles in paint order, bottom first.
func (c *Canvas) Tracked() []entity.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sprites.Keys()
}

// Invalidate marks the whole canvas for repainting.
func (c *Canvas) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidate()
}

func (c *Canvas) invalidate() {
	c.dirty = append(c.dirty[:0], c.bounds)
}

// RequestRedraw marks the region between the two positions, padded by SpriteMargin, for repainting.
func (c *Canvas) RequestRedraw(_ entity.Handle, from, to mgl64.Vec2) {
	a, b := omath.Vec64To32(from), omath.Vec64To32(to)
	box := cube.Box(
		math32.Min(a.X(), b.X()), math32.Min(a.Y(), b.Y()), 0,
		math32.Max(a.X(), b.X()), math32.Max(a.Y(), b.Y()), 0,
	).Grow(SpriteMargin)
	if !box.IntersectsWith(c.bounds) {
		return
	}
	box = clip(box, c.bounds)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = append(c.dirty, box)
}

// Frame builds the next frame from the regions marked since the previous one. It may only be called from
// the render loop, whose context is marked with simulation.RenderContext.
func (c *Canvas) Frame(ctx context.Context, src StateSource) (Frame, error) {
	assert.IsTrue(simulation.IsRenderContext(ctx), "frames can only be built by the render loop")

	c.mu.Lock()
	c.frames++
	frame := Frame{Seq: c.frames, Dirty: rects(coalesce(c.dirty))}
	c.dirty = c.dirty[:0]
	type tracked struct {
		h   entity.Handle
		seq uint64
	}
	list := make([]tracked, 0, c.sprites.Len())
	for el := c.sprites.Front(); el != nil; el = el.Next() {
		list = append(list, tracked{h: el.Key, seq: el.Value})
	}
	c.mu.Unlock()

	var (
		painted = make(map[entity.Handle]uint64, len(list))
		gone    []entity.Handle
	)
	for _, t := range list {
		var (
			sprite Sprite
			latest = t.seq
		)
		err := src.View(t.h, func(st *entity.State) {
			sprite = newSprite(t.h, st)
			if st.History == nil {
				return
			}
			samples := st.History.Since(t.seq)
			if len(samples) == 0 {
				return
			}
			latest = samples[len(samples)-1].Seq
			if t.seq > 0 {
				prev, ok := st.History.Get(t.seq)
				if !ok {
					prev, _ = st.History.Closest(t.seq)
					sprite.Gap = true
				}
				from := omath.Vec64To32(prev.Location)
				sprite.From = &from
			}
			sprite.Trail = lo.FilterMap(samples, func(s entity.Sample, _ int) (mgl32.Vec2, bool) {
				return omath.Vec64To32(s.Location), s.PenDown
			})
		})
		if errors.Is(err, oerror.ErrUnknownEntity) {
			gone = append(gone, t.h)
			continue
		} else if err != nil {
			return frame, err
		}
		painted[t.h] = latest
		frame.Sprites = append(frame.Sprites, sprite)
	}

	c.mu.Lock()
	for h, seq := range painted {
		if _, ok := c.sprites.Get(h); ok {
			c.sprites.Set(h, seq)
		}
	}
	for _, h := range gone {
		c.log.Debugf("entity %d is no longer registered, untracking it", h)
		c.sprites.Delete(h)
	}
	c.mu.Unlock()
	return frame, nil
}

// Run builds a frame every interval and passes it to sink until ctx is done.
func (c *Canvas) Run(ctx context.Context, src StateSource, interval time.Duration, sink func(Frame)) error {
	ctx = simulation.RenderContext(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			frame, err := c.Frame(ctx, src)
			if err != nil {
				c.log.Errorf("failed to build frame: %v", err)
				return err
			}
			sink(frame)
		}
	}
}

func newSprite(h entity.Handle, st *entity.State) Sprite {
	return Sprite{
		Handle:    h,
		Location:  omath.Vec64To32(st.Location),
		Heading:   omath.Heading32(st.Heading),
		Color:     st.Color,
		Thickness: float32(st.Thickness),
		PenDown:   st.PenDown,
		PathType:  st.PathType.String(),
		Status:    st.Status,
		Filling:   st.Filling,
	}
}

func clip(box, bounds cube.BBox) cube.BBox {
	return cube.Box(
		math32.Max(box.Min().X(), bounds.Min().X()), math32.Max(box.Min().Y(), bounds.Min().Y()), 0,
		math32.Min(box.Max().X(), bounds.Max().X()), math32.Min(box.Max().Y(), bounds.Max().Y()), 0,
	)
}

func union(a, b cube.BBox) cube.BBox {
	return cube.Box(
		math32.Min(a.Min().X(), b.Min().X()), math32.Min(a.Min().Y(), b.Min().Y()), 0,
		math32.Max(a.Max().X(), b.Max().X()), math32.Max(a.Max().Y(), b.Max().Y()), 0,
	)
}

func overlaps(a, b cube.BBox) bool {
	return a.Min().X() <= b.Max().X() && b.Min().X() <= a.Max().X() &&
		a.Min().Y() <= b.Max().Y() && b.Min().Y() <= a.Max().Y()
}

// coalesce merges overlapping boxes until no two boxes overlap.
func coalesce(boxes []cube.BBox) []cube.BBox {
	merged := make([]cube.BBox, 0, len(boxes))
	for _, box := range boxes {
		for {
			i := -1
			for j, m := range merged {
				if overlaps(box, m) {
					i = j
					break
				}
			}
			if i < 0 {
				break
			}
			box = union(box, merged[i])
			merged = append(merged[:i], merged[i+1:]...)
		}
		merged = append(merged, box)
	}
	return merged
}

func rects(boxes []cube.BBox) []Rect {
	return lo.Map(boxes, func(b cube.BBox, _ int) Rect {
		return Rect{
			MinX: int(math32.Floor(b.Min().X())),
			MinY: int(math32.Floor(b.Min().Y())),
			MaxX: int(math32.Ceil(b.Max().X())),
			MaxY: int(math32.Ceil(b.Max().Y())),
		}
	})
}
