package distributed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Rocketeer8/Number-Classifier/knn"
)

// Messages on the worker channels are 4-byte integers in host byte order:
// the coordinator sends start then count, the worker answers with one
// correct-prediction count.
const (
	intSize           = 4
	assignmentMsgSize = 2 * intSize
	resultMsgSize     = intSize
)

var (
	ErrInvalidArgument = knn.ErrInvalidArgument
	ErrProtocol        = errors.New("protocol error")
)

func WriteAssignment(w io.Writer, a Assignment) error {
	if err := checkInt32("start", a.Start); err != nil {
		return err
	}
	if err := checkInt32("count", a.Count); err != nil {
		return err
	}
	buf := make([]byte, assignmentMsgSize)
	binary.NativeEndian.PutUint32(buf[:intSize], uint32(int32(a.Start)))
	binary.NativeEndian.PutUint32(buf[intSize:], uint32(int32(a.Count)))
	return writeFull(w, buf, "assignment")
}

func ReadAssignment(r io.Reader) (Assignment, error) {
	buf := make([]byte, assignmentMsgSize)
	if err := readFull(r, buf, "assignment"); err != nil {
		return Assignment{}, err
	}
	a := Assignment{
		Start: int(int32(binary.NativeEndian.Uint32(buf[:intSize]))),
		Count: int(int32(binary.NativeEndian.Uint32(buf[intSize:]))),
	}
	if a.Start < 0 || a.Count < 0 {
		return Assignment{}, fmt.Errorf("%w: negative assignment start=%d count=%d", ErrProtocol, a.Start, a.Count)
	}
	return a, nil
}

func WriteResult(w io.Writer, correct int) error {
	if err := checkInt32("result", correct); err != nil {
		return err
	}
	buf := make([]byte, resultMsgSize)
	binary.NativeEndian.PutUint32(buf, uint32(int32(correct)))
	return writeFull(w, buf, "result")
}

func ReadResult(r io.Reader) (int, error) {
	buf := make([]byte, resultMsgSize)
	if err := readFull(r, buf, "result"); err != nil {
		return 0, err
	}
	correct := int(int32(binary.NativeEndian.Uint32(buf)))
	if correct < 0 {
		return 0, fmt.Errorf("%w: negative result %d", ErrProtocol, correct)
	}
	return correct, nil
}

func readFull(r io.Reader, buf []byte, what string) error {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return fmt.Errorf("%w: short read on %s (%d of %d bytes): %v", ErrProtocol, what, n, len(buf), err)
	}
	return nil
}

func writeFull(w io.Writer, buf []byte, what string) error {
	n, err := w.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("%w: short write on %s (%d of %d bytes): %v", ErrProtocol, what, n, len(buf), err)
	}
	return nil
}

func checkInt32(field string, v int) error {
	if v < 0 || v > math.MaxInt32 {
		return fmt.Errorf("%w: %s %d does not fit the wire format", ErrProtocol, field, v)
	}
	return nil
}
