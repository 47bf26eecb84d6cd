package policy

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// ExportFormat selects the export encoding
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatYAML   ExportFormat = "yaml"
	FormatBundle ExportFormat = "bundle"
)

const bundleDocumentDir = "documents/"

// ExportRequest selects what to export
type ExportRequest struct {
	Format ExportFormat `json:"format"`
	// Names restricts the export to the named documents; empty exports all
	Names  []string `json:"names,omitempty"`
	Pretty bool     `json:"pretty"`
}

// ExportMetadata describes an export
type ExportMetadata struct {
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	StoreVersion  uint64    `json:"storeVersion" yaml:"storeVersion"`
	DocumentCount int       `json:"documentCount" yaml:"documentCount"`
}

// ExportResult is the exported store content
type ExportResult struct {
	Documents []*types.ChildDocument `json:"documents" yaml:"documents"`
	Metadata  *ExportMetadata        `json:"metadata" yaml:"metadata"`
}

// Exporter writes store content in a form the loader can read back
type Exporter struct {
	store Store
}

// NewExporter creates a new exporter over store
func NewExporter(store Store) *Exporter {
	return &Exporter{store: store}
}

// Export collects the requested documents
func (e *Exporter) Export(req ExportRequest) (*ExportResult, error) {
	all := e.store.GetAll()
	docs := all
	if len(req.Names) > 0 {
		docs = make([]*types.ChildDocument, 0, len(req.Names))
		for _, name := range req.Names {
			doc, err := e.store.Get(name)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}

	return &ExportResult{
		Documents: docs,
		Metadata: &ExportMetadata{
			Timestamp:     time.Now().UTC(),
			StoreVersion:  e.store.Version(),
			DocumentCount: len(docs),
		},
	}, nil
}

// ExportTo writes the export in req.Format
func (e *Exporter) ExportTo(req ExportRequest, w io.Writer) error {
	result, err := e.Export(req)
	if err != nil {
		return err
	}

	switch req.Format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		if req.Pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(result)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case FormatBundle:
		return writeBundle(result, w)
	default:
		return fmt.Errorf("unsupported export format %q", req.Format)
	}
}

// writeBundle writes a tar.gz holding metadata.json and one YAML file per
// document
func writeBundle(result *ExportResult, w io.Writer) (err error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	}()

	meta, err := json.MarshalIndent(result.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := addFileToTar(tw, "metadata.json", meta, result.Metadata.Timestamp); err != nil {
		return err
	}

	for _, doc := range result.Documents {
		data, err := marshalDocument(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s: %w", doc.Name(), err)
		}
		if err := addFileToTar(tw, bundleDocumentDir+doc.Name()+".yaml", data, result.Metadata.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// marshalDocument renders doc as YAML with an explicit kind
func marshalDocument(doc *types.ChildDocument) ([]byte, error) {
	var (
		kind string
		body interface{}
	)
	switch {
	case doc.Policy != nil:
		kind, body = "policy", doc.Policy
	case doc.PolicySet != nil:
		kind, body = "policyset", doc.PolicySet
	default:
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}

	data, err := yaml.Marshal(body)
	if err != nil {
		return nil, err
	}
	return append([]byte("kind: "+kind+"\n"), data...), nil
}

func addFileToTar(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write tar data: %w", err)
	}
	return nil
}

// ReadBundle parses the documents of a bundle written by ExportTo. The
// documents are not validated.
func ReadBundle(r io.Reader) ([]*types.ChildDocument, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var docs []*types.ChildDocument
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle: %w", err)
		}
		if header.Typeflag != tar.TypeReg ||
			!strings.HasPrefix(header.Name, bundleDocumentDir) ||
			!isPolicyFile(header.Name) {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		doc, err := ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(header.Name), err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
