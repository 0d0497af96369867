// Package codec centralizes the JSON rendering of identifiers, handle
// descriptions and statistics.
//
// Nothing in the credit protocol depends on these encodings; they are used
// for debug output, the gidctl command and configuration dumps. Neither
// codec escapes HTML, so rendered GIDs stay readable.
package codec

import (
	"fmt"
	"io"
	"strings"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Indenter is implemented by codecs that can pretty-print.
type Indenter interface {
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
}

// Default is the codec used for debug rendering.
var Default Codec = GoJSON{}

// Names lists the built-in codecs.
func Names() []string { return []string{GoJSON{}.Name(), JSON{}.Name()} }

// ByName returns a built-in codec by its stable name, ignoring case. The
// empty name selects Default.
func ByName(name string) (Codec, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return Default, true
	case "json":
		return JSON{}, true
	case "go-json", "gojson":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Pretty marshals v with indentation when c supports it.
func Pretty(c Codec, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	if ind, ok := c.(Indenter); ok {
		return ind.MarshalIndent(v, "", "  ")
	}
	return c.Marshal(v)
}

// Fprint writes the indented rendering of v and a trailing newline to w.
func Fprint(w io.Writer, c Codec, v any) error {
	if c == nil {
		c = Default
	}
	data, err := Pretty(c, v)
	if err != nil {
		return fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
