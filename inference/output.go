package inference

import (
	"fmt"

	"github.com/nvr-ai/go-vision-detect/models/postprocess"
)

// DecodeOutput converts a raw output tensor into candidates.
//
// Class probabilities below the floor are zeroed and candidates left without
// any probability are skipped. For LayoutDarknet the objectness score gates
// the candidate and is multiplied into every class probability. Every
// candidate gets its own Probs slice, so the output buffer can be reused.
//
// Arguments:
//   - layout: The output layout.
//   - data: The flat output tensor.
//   - shape: The output shape, with or without a leading batch dimension of 1.
//   - floor: The confidence floor.
//
// Returns:
//   - The candidates in tensor pixels.
//   - An error if the shape does not match the layout or the data.
func DecodeOutput(layout Layout, data []float32, shape []int64, floor float32) ([]postprocess.RawDetection, error) {
	if len(shape) == 3 {
		if shape[0] != 1 {
			return nil, fmt.Errorf("unsupported batch size %d", shape[0])
		}
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("unsupported output rank %d", len(shape))
	}
	rows, cols := int(shape[0]), int(shape[1])
	if rows <= 0 || cols <= 0 || rows*cols != len(data) {
		return nil, fmt.Errorf("output shape %v does not match %d values", shape, len(data))
	}

	switch layout {
	case LayoutYOLOv8:
		return decodeYOLOv8(data, rows, cols, floor)
	case LayoutDarknet:
		return decodeDarknet(data, rows, cols, floor)
	default:
		return nil, fmt.Errorf("unsupported output layout %q", layout)
	}
}

// decodeYOLOv8 reads a [4+K, N] tensor, one candidate per column.
func decodeYOLOv8(data []float32, rows, n int, floor float32) ([]postprocess.RawDetection, error) {
	classes := rows - 4
	if classes <= 0 {
		return nil, fmt.Errorf("yolov8 output needs more than 4 rows, got %d", rows)
	}

	raws := make([]postprocess.RawDetection, 0)
	for i := 0; i < n; i++ {
		var probs []float32
		for k := 0; k < classes; k++ {
			p := data[(4+k)*n+i]
			if p < floor {
				continue
			}
			if probs == nil {
				probs = make([]float32, classes)
			}
			probs[k] = p
		}
		if probs == nil {
			continue
		}
		raws = append(raws, postprocess.RawDetection{
			CX:    data[i],
			CY:    data[n+i],
			W:     data[2*n+i],
			H:     data[3*n+i],
			Probs: probs,
		})
	}
	return raws, nil
}

// decodeDarknet reads a [N, 5+K] tensor, one candidate per row.
func decodeDarknet(data []float32, n, stride int, floor float32) ([]postprocess.RawDetection, error) {
	classes := stride - 5
	if classes <= 0 {
		return nil, fmt.Errorf("darknet output needs more than 5 columns, got %d", stride)
	}

	raws := make([]postprocess.RawDetection, 0)
	for i := 0; i < n; i++ {
		row := data[i*stride : (i+1)*stride]
		objectness := row[4]
		if objectness < floor {
			continue
		}
		var probs []float32
		for k := 0; k < classes; k++ {
			p := objectness * row[5+k]
			if p < floor {
				continue
			}
			if probs == nil {
				probs = make([]float32, classes)
			}
			probs[k] = p
		}
		if probs == nil {
			continue
		}
		raws = append(raws, postprocess.RawDetection{
			CX:    row[0],
			CY:    row[1],
			W:     row[2],
			H:     row[3],
			Probs: probs,
		})
	}
	return raws, nil
}
