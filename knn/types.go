package knn

import (
	"errors"
	"fmt"
)

const (
	ImageWidth  = 28
	ImageHeight = 28
	ImageSize   = ImageWidth * ImageHeight

	// NumLabels bounds the label set: every label lies in [0, NumLabels).
	NumLabels = 10
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDataset         = errors.New("dataset error")
)

type Image struct {
	Width  int
	Height int
	Pixels []byte
}

type Dataset struct {
	Images []Image
	Labels []uint8
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Images)
}

func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil dataset", ErrDataset)
	}
	if len(d.Images) != len(d.Labels) {
		return fmt.Errorf("%w: %d images but %d labels", ErrDataset, len(d.Images), len(d.Labels))
	}
	for i, img := range d.Images {
		if len(img.Pixels) != img.Width*img.Height {
			return fmt.Errorf("%w: image %d has %d pixels, want %dx%d",
				ErrDataset, i, len(img.Pixels), img.Width, img.Height)
		}
		if img.Width != d.Images[0].Width || img.Height != d.Images[0].Height {
			return fmt.Errorf("%w: image %d is %dx%d, want %dx%d", ErrDataset, i,
				img.Width, img.Height, d.Images[0].Width, d.Images[0].Height)
		}
		if d.Labels[i] >= NumLabels {
			return fmt.Errorf("%w: label %d of item %d out of range", ErrDataset, d.Labels[i], i)
		}
	}
	return nil
}
