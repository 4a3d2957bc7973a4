// Package requestfile decodes extraction requests from YAML or JSON
// documents.
package requestfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/envextract/internal/domain"
)

// Decoder turns request documents into extraction requests. A file may hold
// several YAML documents, and each document may be a single request or a
// list of requests.
type Decoder struct {
	// BaseDir resolves relative geojson_file references. When empty, file
	// references are rejected.
	BaseDir string
}

// DecodeFile reads path and resolves file references next to it.
func DecodeFile(path string) ([]domain.ExtractionRequest, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}
	d := Decoder{BaseDir: filepath.Dir(path)}
	reqs, err := d.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reqs, nil
}

// Decode parses every request in data.
func (d Decoder) Decode(data []byte) ([]domain.ExtractionRequest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var reqs []domain.ExtractionRequest
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid(fmt.Sprintf("document %d", doc), err.Error())
		}

		root := &node
		if root.Kind == yaml.DocumentNode {
			if len(root.Content) == 0 {
				continue
			}
			root = root.Content[0]
		}

		items := []*yaml.Node{root}
		if root.Kind == yaml.SequenceNode {
			items = root.Content
		}
		for i, item := range items {
			req, err := d.request(item)
			if err != nil {
				return nil, fmt.Errorf("document %d, request %d: %w", doc, i, err)
			}
			reqs = append(reqs, req)
		}
	}

	if len(reqs) == 0 {
		return nil, invalid("document", "no requests found")
	}
	return reqs, nil
}

func (d Decoder) request(node *yaml.Node) (domain.ExtractionRequest, error) {
	var req domain.ExtractionRequest
	if node.Kind != yaml.MappingNode {
		return req, invalid("request", "expected a mapping")
	}
	if err := node.Decode(&req); err != nil {
		return req, invalid("request", err.Error())
	}
	req.Product = strings.TrimSpace(req.Product)
	if req.Product == "" {
		return req, &domain.ValidationError{Field: "product", Value: "", Constraint: "required", Message: "product is required"}
	}

	// inline GeoJSON is written as a nested mapping and re-encoded as JSON
	if inline := lookup(node, "geometry", "geojson"); inline != nil {
		var v any
		if err := inline.Decode(&v); err != nil {
			return req, invalid("geometry.geojson", err.Error())
		}
		doc, err := json.Marshal(v)
		if err != nil {
			return req, invalid("geometry.geojson", err.Error())
		}
		req.Geometry.GeoJSON = doc
	}

	if file := req.Geometry.GeoJSONFile; file != "" {
		if len(req.Geometry.GeoJSON) > 0 {
			return req, invalid("geometry", "geojson and geojson_file are mutually exclusive")
		}
		doc, err := d.readGeoJSON(file)
		if err != nil {
			return req, err
		}
		req.Geometry.GeoJSON = doc
	}

	return req, nil
}

func (d Decoder) readGeoJSON(file string) (json.RawMessage, error) {
	if d.BaseDir == "" {
		return nil, invalid("geometry.geojson_file", "file references are only allowed in local request files")
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(d.BaseDir, file)
	}
	data, err := os.ReadFile(file) //#nosec G304 -- referenced by an operator-written request file
	if err != nil {
		return nil, fmt.Errorf("reading geojson_file: %w", err)
	}
	if !json.Valid(data) {
		return nil, invalid("geometry.geojson_file", "file is not valid JSON")
	}
	return data, nil
}

// lookup follows mapping keys below node.
func lookup(node *yaml.Node, keys ...string) *yaml.Node {
	for _, key := range keys {
		if node.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == key {
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil
		}
		node = next
	}
	return node
}

func invalid(field, msg string) error {
	return &domain.ValidationError{Field: field, Value: nil, Constraint: "valid request document", Message: msg}
}
