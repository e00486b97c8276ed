package livesync

// DefaultBottomThreshold is how close to the end, in pixels or lines, still
// counts as being at the bottom.
const DefaultBottomThreshold = 100

// Viewport is the scroll state of the message list as the UI last reported it.
type Viewport struct {
	ScrollTop    float64
	ClientHeight float64
	ScrollHeight float64
	Threshold    float64
}

// AtBottom reports whether the visible area ends within the threshold of the content end.
func (v Viewport) AtBottom() bool {
	threshold := v.Threshold
	if threshold <= 0 {
		threshold = DefaultBottomThreshold
	}
	return v.ScrollHeight-v.ScrollTop-v.ClientHeight <= threshold
}

// Bottom returns v scrolled all the way down.
func (v Viewport) Bottom() Viewport {
	if top := v.ScrollHeight - v.ClientHeight; top > 0 {
		v.ScrollTop = top
	} else {
		v.ScrollTop = 0
	}
	return v
}
