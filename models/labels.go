package models

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	// SentinelID marks a class id that has no entry in a custom label table.
	// Consumers must treat it as "no usable classification".
	SentinelID = 255
	// UnknownLabel is the name reported alongside SentinelID.
	UnknownLabel = "unknown"
)

func init() {
	COCOClasses.BuildNameIndexMap()
}

// LabelFileError is returned when a custom label file cannot be read.
type LabelFileError struct {
	Path string
	Err  error
}

func (e *LabelFileError) Error() string {
	return fmt.Sprintf("label file %q: %v", e.Path, e.Err)
}

func (e *LabelFileError) Unwrap() error { return e.Err }

// LabelTable maps class ids to display names. It is chosen once at startup and
// never modified afterwards, so it is safe to share between goroutines.
type LabelTable struct {
	names  []string
	custom bool
}

// BuiltinLabels returns the table backed by the built-in COCO dictionary.
func BuiltinLabels() *LabelTable {
	return &LabelTable{names: COCOClasses.Names()}
}

// NewCustomLabels returns a table backed by an ordered list of names, where
// the position of each name is its class id.
func NewCustomLabels(names []string) *LabelTable {
	return &LabelTable{names: append([]string(nil), names...), custom: true}
}

// LoadLabelFile reads a custom label table, one label per line.
//
// Line i names class i. Blank lines keep their slot so ids stay aligned with
// the model. A trailing carriage return is stripped from each line.
//
// Arguments:
//   - path: Path to the UTF-8 label file.
//
// Returns:
//   - The custom label table.
//   - *LabelFileError if the file cannot be opened or read.
//
// @example
// labels, err := LoadLabelFile("/models/traffic.names")
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadLabelFile(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LabelFileError{Path: path, Err: err}
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, &LabelFileError{Path: path, Err: errors.Wrap(err, "read failed")}
	}
	return NewCustomLabels(names), nil
}

// Custom reports whether the table came from a user supplied list.
func (t *LabelTable) Custom() bool { return t.custom }

// Len returns the number of entries in the table.
func (t *LabelTable) Len() int { return len(t.names) }

// Names returns a copy of the table in id order.
func (t *LabelTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Resolve returns the display name and the output id for a class id.
//
// With the built-in dictionary the id is passed through unchanged. With a
// custom table an id past the end of the table resolves to UnknownLabel and
// SentinelID.
//
// Arguments:
//   - id: The class id chosen by the decoder.
//
// Returns:
//   - The display name.
//   - The id to publish.
//
// @example
// labels := NewCustomLabels([]string{"car", "truck", "bus"})
// labels.Resolve(2) // "bus", 2
// labels.Resolve(5) // "unknown", 255
func (t *LabelTable) Resolve(id int) (string, int) {
	if !t.custom {
		if name, ok := COCOClasses.NameOf(id); ok {
			return name, id
		}
		return UnknownLabel, id
	}
	if id >= 0 && id < len(t.names) {
		return t.names[id], id
	}
	return UnknownLabel, SentinelID
}
