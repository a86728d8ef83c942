package client

// edgeThreshold is the pixel distance from a scroll edge at which edge
// behaviors trigger: history pagination at the top, follow-bottom at the
// bottom.
const edgeThreshold = 50

// Viewport models the scroll state of a message list in pixels. The UI owns
// the real geometry and reports it here; keeping it an explicit value type
// makes the edge rules testable without a terminal or browser.
type Viewport struct {
	// Offset is the scroll position measured from the top of the content.
	Offset int
	// Height is the visible height.
	Height int
	// ContentHeight is the total height of the rendered content.
	ContentHeight int
}

// NearTop reports whether the view is within the edge threshold of the top.
func (v Viewport) NearTop() bool {
	return v.Offset < edgeThreshold
}

// NearBottom reports whether the view is within the edge threshold of the
// bottom. A view shorter than its viewport counts as at the bottom.
func (v Viewport) NearBottom() bool {
	return v.ContentHeight-(v.Offset+v.Height) < edgeThreshold
}

// AtBottom returns a copy scrolled fully to the bottom.
func (v Viewport) AtBottom() Viewport {
	v.Offset = v.ContentHeight - v.Height
	if v.Offset < 0 {
		v.Offset = 0
	}
	return v
}

// RestoreAfterPrepend returns a copy of v adjusted so the content visible in
// prev stays in place after older content grew the view above it. v carries
// the new ContentHeight, prev the geometry from before the prepend.
func (v Viewport) RestoreAfterPrepend(prev Viewport) Viewport {
	v.Offset = prev.Offset + (v.ContentHeight - prev.ContentHeight)
	if v.Offset < 0 {
		v.Offset = 0
	}
	return v
}
