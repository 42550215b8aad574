package tdt

import "fmt"

// FrameView is a read-only, stride-aware window over a flattened encoder
// output tensor. It lets the decode loop address single frames without
// copying or transposing the whole block.
//
// Two memory layouts occur in practice: [T, H] (frame-major, stride H
// between frames, 1 between features) and [1, H, T] as CoreML and ONNX
// emit it (feature-major, stride 1 between frames, T between features).
type FrameView struct {
	data []float32
	// count is the number of addressable frames, hidden the features per
	// frame. frameStride/featStride are element offsets between adjacent
	// frames / features.
	count       int
	hidden      int
	frameStride int
	featStride  int
}

// NewFrameView wraps a frame-major [T, H] tensor.
func NewFrameView(data []float32, frames, hidden int) (FrameView, error) {
	return newStridedView(data, frames, hidden, hidden, 1)
}

// NewTransposedFrameView wraps a feature-major [H, T] tensor, e.g. the raw
// [1, H, T] encoder output, without transposing it up front.
func NewTransposedFrameView(data []float32, frames, hidden int) (FrameView, error) {
	return newStridedView(data, frames, hidden, 1, frames)
}

func newStridedView(data []float32, frames, hidden, frameStride, featStride int) (FrameView, error) {
	if frames < 0 || hidden <= 0 {
		return FrameView{}, fmt.Errorf("tdt: bad view shape frames=%d hidden=%d: %w", frames, hidden, ErrProcessingFailed)
	}
	if frames*hidden > len(data) {
		return FrameView{}, fmt.Errorf("tdt: view shape %dx%d exceeds %d elements: %w", frames, hidden, len(data), ErrProcessingFailed)
	}
	return FrameView{
		data:        data,
		count:       frames,
		hidden:      hidden,
		frameStride: frameStride,
		featStride:  featStride,
	}, nil
}

// Count returns the number of frames in the view.
func (v FrameView) Count() int { return v.count }

// Hidden returns the feature vector size of one frame.
func (v FrameView) Hidden() int { return v.hidden }

// CopyFrame copies frame i into dst, which must hold Hidden() elements.
func (v FrameView) CopyFrame(i int, dst []float32) error {
	if i < 0 || i >= v.count {
		return fmt.Errorf("tdt: frame index %d out of range [0,%d): %w", i, v.count, ErrProcessingFailed)
	}
	if len(dst) < v.hidden {
		return fmt.Errorf("tdt: frame buffer holds %d of %d features: %w", len(dst), v.hidden, ErrProcessingFailed)
	}
	if v.featStride == 1 {
		base := i * v.frameStride
		copy(dst[:v.hidden], v.data[base:base+v.hidden])
		return nil
	}
	base := i * v.frameStride
	for h := 0; h < v.hidden; h++ {
		dst[h] = v.data[base+h*v.featStride]
	}
	return nil
}
