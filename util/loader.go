// Package util - Frame sources: image directories and gocv captures.
package util

import (
	"bytes"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp" // register decoder
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the number parsed from the file name, or -1 when the name has none.
	Frame int
}

// frameNumber extracts the trailing digits of a file name stem, so that
// "frame-0012.jpg" and "0012.png" both give 12.
func frameNumber(name string) int {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	i := len(stem)
	for i > 0 && stem[i-1] >= '0' && stem[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(stem[i:])
	if err != nil {
		return -1
	}
	return n
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Files are ordered by their frame number. Files without a number sort after
// the numbered ones, by name.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(file.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
			imgPath := filepath.Join(dir, file.Name())
			data, readErr := os.ReadFile(imgPath)
			if readErr != nil {
				return nil, readErr
			}
			out = append(out, ImageFile{
				Path:  imgPath,
				Data:  data,
				Frame: frameNumber(file.Name()),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return b.Frame < 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return out, nil
}

// DecodeFrame decodes an image file into a bgr8 frame.
//
// Arguments:
// - file: The image file.
// - seq: The sequence number for the frame header.
// - frameID: The frame id for the frame header.
//
// Returns:
// - images.Frame: The decoded frame.
// - error: Error if the file is not a supported image.
func DecodeFrame(file ImageFile, seq uint32, frameID string) (images.Frame, error) {
	var (
		img image.Image
		err error
	)
	if strings.EqualFold(filepath.Ext(file.Path), ".webp") {
		img, err = webp.Decode(bytes.NewReader(file.Data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(file.Data))
	}
	if err != nil {
		return images.Frame{}, errors.Wrapf(err, "decode %s", file.Path)
	}
	return images.FrameFromImage(img, images.Header{Seq: seq, Stamp: time.Now(), FrameID: frameID}), nil
}
