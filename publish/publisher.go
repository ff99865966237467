// Package publish - Outbound delivery of detection results.
package publish

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/nvr-ai/go-vision-detect/output"
	"github.com/pkg/errors"
)

// Publisher delivers assembled results.
type Publisher interface {
	Publish(ctx context.Context, result output.Result) error
	Close() error
}

// JSONPublisher writes one JSON document per line.
type JSONPublisher struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONPublisher writes to w. The writer is not closed by Close.
func NewJSONPublisher(w io.Writer) *JSONPublisher {
	return &JSONPublisher{enc: json.NewEncoder(w)}
}

// OpenJSONFile creates (or truncates) a file for JSON results. "-" selects stdout.
//
// Arguments:
//   - path: The output path.
//
// Returns:
//   - *JSONPublisher: The publisher, which closes the file on Close.
//   - An error if the file cannot be created.
func OpenJSONFile(path string) (*JSONPublisher, error) {
	if path == "-" {
		return NewJSONPublisher(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	p := NewJSONPublisher(f)
	p.closer = f
	return p, nil
}

// Publish encodes the result.
func (p *JSONPublisher) Publish(ctx context.Context, result output.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrapf(p.enc.Encode(result), "encode frame %d", result.Header.Seq)
}

// Close closes the underlying file, if the publisher opened one.
func (p *JSONPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

// Multi fans a result out to several publishers. Every publisher is tried even
// when an earlier one fails; the first error is returned.
type Multi []Publisher

// Publish delivers the result to every publisher.
func (m Multi) Publish(ctx context.Context, result output.Result) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, result); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every publisher.
func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
