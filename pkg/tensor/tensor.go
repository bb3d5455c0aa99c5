package tensor

import "fmt"

// Tensor is a dense float32 array in channel-row-column order, the layout
// expected by the embedding stage.
type Tensor struct {
	Data     []float32
	Channels int
	Height   int
	Width    int
}

// New allocates a zero-initialized tensor of the given shape.
func New(channels, height, width int) Tensor {
	return Tensor{
		Data:     make([]float32, channels*height*width),
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

// At returns the value at channel c, row y, column x.
func (t Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

// Set writes the value at channel c, row y, column x.
func (t Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.Height+y)*t.Width+x] = v
}

// Len returns the number of elements in the tensor.
func (t Tensor) Len() int {
	return t.Channels * t.Height * t.Width
}

// PadTo returns a tensor of shape (channels, height, width) with t copied
// into the top-left corner and zeros on the trailing edges. If t already has
// the requested shape it is returned unchanged.
func (t Tensor) PadTo(height, width int) (Tensor, error) {
	if height < t.Height || width < t.Width {
		return Tensor{}, fmt.Errorf("cannot pad (%d,%d) down to (%d,%d)", t.Height, t.Width, height, width)
	}
	if height == t.Height && width == t.Width {
		return t, nil
	}
	out := New(t.Channels, height, width)
	for c := 0; c < t.Channels; c++ {
		for y := 0; y < t.Height; y++ {
			src := (c*t.Height + y) * t.Width
			dst := (c*height + y) * width
			copy(out.Data[dst:dst+t.Width], t.Data[src:src+t.Width])
		}
	}
	return out, nil
}

// Batch is a dense float32 array in batch-channel-row-column order.
type Batch struct {
	Data     []float32
	N        int
	Channels int
	Height   int
	Width    int
}

// Stack concatenates tensors of identical shape into a batch. A single
// tensor yields a batch of one.
func Stack(tensors []Tensor) (Batch, error) {
	if len(tensors) == 0 {
		return Batch{}, fmt.Errorf("cannot stack an empty tensor list")
	}
	first := tensors[0]
	data := make([]float32, 0, len(tensors)*first.Len())
	for i, t := range tensors {
		if t.Channels != first.Channels || t.Height != first.Height || t.Width != first.Width {
			return Batch{}, fmt.Errorf(
				"tensor %d has shape (%d,%d,%d), expected (%d,%d,%d)",
				i, t.Channels, t.Height, t.Width, first.Channels, first.Height, first.Width,
			)
		}
		data = append(data, t.Data...)
	}
	return Batch{
		Data:     data,
		N:        len(tensors),
		Channels: first.Channels,
		Height:   first.Height,
		Width:    first.Width,
	}, nil
}

// Item returns the i-th tensor of the batch. The returned tensor shares
// the batch's backing array.
func (b Batch) Item(i int) Tensor {
	size := b.Channels * b.Height * b.Width
	return Tensor{
		Data:     b.Data[i*size : (i+1)*size],
		Channels: b.Channels,
		Height:   b.Height,
		Width:    b.Width,
	}
}
