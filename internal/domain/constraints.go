package domain

// VideoBounds limits the captured resolution.
type VideoBounds struct {
	MinWidth  int
	MinHeight int
	MaxWidth  int
	MaxHeight int
}

type FrameRateBounds struct {
	Min float32
	Max float32
}

// MediaConstraints is what a stream asks the device layer for.
type MediaConstraints struct {
	Audio  bool
	Video  bool
	Screen bool
	Fake   bool

	Size      *VideoBounds
	FrameRate *FrameRateBounds

	ExtensionID     string
	DesktopStreamID string
}

// ParseVideoSize expects minWidth, minHeight, maxWidth, maxHeight.
// A nil slice means no bounds.
func ParseVideoSize(size []int) (*VideoBounds, error) {
	if size == nil {
		return nil, nil
	}
	if len(size) != 4 {
		return nil, ErrInvalidVideoSize
	}
	return &VideoBounds{
		MinWidth:  size[0],
		MinHeight: size[1],
		MaxWidth:  size[2],
		MaxHeight: size[3],
	}, nil
}

// ParseFrameRate expects min and max frame rate. A nil slice means no bounds.
func ParseFrameRate(rate []float32) (*FrameRateBounds, error) {
	if rate == nil {
		return nil, nil
	}
	if len(rate) != 2 {
		return nil, ErrInvalidFrameRate
	}
	return &FrameRateBounds{Min: rate[0], Max: rate[1]}, nil
}
