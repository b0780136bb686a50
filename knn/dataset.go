package knn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const maxPrealloc = 4096

// Load reads a dataset file: an int32 item count followed by one label byte
// and ImageSize pixel bytes per item, integers in host byte order.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDataset, path, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		if err := checkCount(f, info.Size()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	ds, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ds, nil
}

// checkCount rejects a header claiming more items than a file of size bytes
// can hold, then rewinds f.
func checkCount(f *os.File, size int64) error {
	var count int32
	if err := binary.Read(f, binary.NativeEndian, &count); err != nil {
		return fmt.Errorf("%w: read item count: %v", ErrDataset, err)
	}
	if count > 0 && int64(count) > (size-4)/(1+ImageSize) {
		return fmt.Errorf("%w: header claims %d items, file holds at most %d",
			ErrDataset, count, (size-4)/(1+ImageSize))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind: %v", ErrDataset, err)
	}
	return nil
}

func Read(r io.Reader) (*Dataset, error) {
	var count int32
	if err := binary.Read(r, binary.NativeEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: read item count: %v", ErrDataset, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative item count %d", ErrDataset, count)
	}

	// the count is untrusted until the records arrive
	prealloc := min(int(count), maxPrealloc)
	ds := &Dataset{
		Images: make([]Image, 0, prealloc),
		Labels: make([]uint8, 0, prealloc),
	}
	record := make([]byte, 1+ImageSize)
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(r, record); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("%w: item %d of %d: %v", ErrDataset, i, count, err)
		}
		pixels := make([]byte, ImageSize)
		copy(pixels, record[1:])
		ds.Labels = append(ds.Labels, record[0])
		ds.Images = append(ds.Images, Image{Width: ImageWidth, Height: ImageHeight, Pixels: pixels})
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Write encodes ds in the layout Read expects. Every image must be
// ImageWidth x ImageHeight.
func Write(w io.Writer, ds *Dataset) error {
	if ds.Len() > math.MaxInt32 {
		return fmt.Errorf("%w: %d items do not fit the count field", ErrDataset, ds.Len())
	}
	if err := binary.Write(w, binary.NativeEndian, int32(ds.Len())); err != nil {
		return fmt.Errorf("write item count: %w", err)
	}
	for i, img := range ds.Images {
		if len(img.Pixels) != ImageSize {
			return fmt.Errorf("%w: image %d has %d pixels, want %d", ErrDataset, i, len(img.Pixels), ImageSize)
		}
		if _, err := w.Write([]byte{ds.Labels[i]}); err != nil {
			return fmt.Errorf("write label %d: %w", i, err)
		}
		if _, err := w.Write(img.Pixels); err != nil {
			return fmt.Errorf("write image %d: %w", i, err)
		}
	}
	return nil
}

func Save(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, ds); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
