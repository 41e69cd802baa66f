// Package bundle reads flatmap bundle directories produced by the map
// publishing pipeline: an annotation dictionary, an optional connectivity
// (pathways) model, and the stylesheet layer list. Each file may be stored
// plain or gzip-compressed.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/rdcourtney/flatmap/api/internal/models"
)

const (
	annotationsFile = "annotations.json"
	pathwaysFile    = "pathways.json"
	layersFile      = "layers.json"
)

// Path is one connectivity path from the bundle's pathways file: the path
// model identifier (the dictionary key) plus the features, nerves and
// provenance attached to it.
type Path struct {
	ID     string            `json:"-"`
	Lines  []models.FeatureID `json:"lines"`
	Kind   string            `json:"kind,omitempty"`
	Label  string            `json:"label,omitempty"`
	Nerves []string          `json:"nerves,omitempty"`
	Sckan  *bool             `json:"sckan,omitempty"`
}

// Bundle is the decoded content of one flatmap bundle directory.
// Annotations and Paths preserve their dictionary order, which fixes the
// feature-id assignment order downstream.
type Bundle struct {
	Annotations []*models.Annotation
	Paths       []Path
	Layers      []models.StyleLayer
}

// Load reads a bundle directory. The annotation dictionary is mandatory;
// pathways and layers are optional, since not every map has connectivity or
// a custom stylesheet.
func Load(dir string) (*Bundle, error) {
	b := &Bundle{}

	reader, err := open(dir, annotationsFile)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", dir, err)
	}
	b.Annotations, err = decodeAnnotations(reader)
	reader.Close()
	if err != nil {
		return nil, fmt.Errorf("bundle %s: annotations: %w", dir, err)
	}

	reader, err = open(dir, pathwaysFile)
	if err == nil {
		b.Paths, err = decodePathways(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("bundle %s: pathways: %w", dir, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("bundle %s: %w", dir, err)
	}

	reader, err = open(dir, layersFile)
	if err == nil {
		decodeErr := json.NewDecoder(reader).Decode(&b.Layers)
		reader.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("bundle %s: layers: %w", dir, decodeErr)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("bundle %s: %w", dir, err)
	}

	return b, nil
}

// open opens a bundle file, preferring the plain form and transparently
// decompressing the .gz form.
func open(dir, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	f, err = os.Open(filepath.Join(dir, name+".gz"))
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s.gz: %w", name, err)
	}
	return &gzipReadCloser{zr: zr, file: f}, nil
}

type gzipReadCloser struct {
	zr   *gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipReadCloser) Close() error {
	zErr := g.zr.Close()
	fErr := g.file.Close()
	if zErr != nil {
		return zErr
	}
	return fErr
}

// decodeAnnotations walks the annotation dictionary with a token decoder
// instead of unmarshalling into a map, because dictionary order determines
// feature-id assignment order and maps would lose it.
func decodeAnnotations(r io.Reader) ([]*models.Annotation, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var annotations []*models.Annotation
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var ann models.Annotation
		if err := dec.Decode(&ann); err != nil {
			return nil, err
		}
		annotations = append(annotations, &ann)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return annotations, nil
}

// decodePathways reads {"paths": {modelID: {...}}}, keeping dictionary
// order.
func decodePathways(r io.Reader) ([]Path, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var paths []Path
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if key != "paths" {
			var skipped json.RawMessage
			if err := dec.Decode(&skipped); err != nil {
				return nil, err
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			idToken, err := dec.Token()
			if err != nil {
				return nil, err
			}
			id, ok := idToken.(string)
			if !ok {
				return nil, fmt.Errorf("expected path model id, got %v", idToken)
			}
			var p Path
			if err := dec.Decode(&p); err != nil {
				return nil, err
			}
			p.ID = id
			paths = append(paths, p)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return paths, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
