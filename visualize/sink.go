package visualize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Sink receives labeled frames.
type Sink interface {
	WriteFrame(frame images.Frame) error
}

// DirectorySink writes labeled frames as image files named after their sequence number.
type DirectorySink struct {
	Dir string
	// Ext is the file extension and therefore the codec. Defaults to "jpg".
	Ext string
}

// NewDirectorySink creates the directory if needed.
//
// Arguments:
//   - dir: The output directory.
//
// Returns:
//   - *DirectorySink: The sink.
//   - An error if the directory cannot be created.
func NewDirectorySink(dir string) (*DirectorySink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	return &DirectorySink{Dir: dir, Ext: "jpg"}, nil
}

// Path returns the file a frame is written to.
func (s *DirectorySink) Path(header images.Header) string {
	ext := s.Ext
	if ext == "" {
		ext = "jpg"
	}
	return filepath.Join(s.Dir, fmt.Sprintf("frame_%08d.%s", header.Seq, ext))
}

// WriteFrame encodes and writes one frame.
func (s *DirectorySink) WriteFrame(frame images.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	packed := frame.Clone()
	mat, err := gocv.NewMatFromBytes(packed.Height, packed.Width, gocv.MatTypeCV8UC3, packed.Data)
	if err != nil {
		return errors.Wrap(err, "wrap frame")
	}
	defer mat.Close()

	path := s.Path(frame.Header)
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
