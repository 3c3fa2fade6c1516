package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── XML File Source ─────────────────────────────────────────
// Each child of the document root is one row; the declared fields name
// the child tags holding the row's values.

type xmlFileSource struct{}

func init() { etl.RegisterSource(&xmlFileSource{}) }

// xmlField maps a child tag to a typed column.
type xmlField struct {
	Name string      `json:"name"`
	Tag  string      `json:"tag,omitempty"` // defaults to Name
	Kind domain.Kind `json:"kind,omitempty"`
}

type xmlConfig struct {
	FilePath string     `json:"filePath"`
	RowTag   string     `json:"rowTag"`
	Fields   []xmlField `json:"fields"`
}

func (s *xmlFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "xml_file",
		Label: "XML File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "string", Required: true, Help: "Path to the XML file"},
			{Key: "fields", Label: "Fields", Type: "list", Required: true, Help: "Objects of {name, tag, kind}; kind is text, integer or number"},
			{Key: "rowTag", Label: "Row Tag", Type: "string", Help: "Only children of the root with this tag are rows"},
		},
	}
}

func (s *xmlFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c xmlConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	return readXMLFile(c)
}

func readXMLFile(c xmlConfig) (*domain.Frame, error) {
	if c.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	f, err := os.Open(c.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open file: %w", domain.ErrSourceUnavailable, err)
	}
	defer f.Close()
	return parseXML(f, c)
}

// xmlNode is a generic element tree.
type xmlNode struct {
	XMLName xml.Name
	Nodes   []xmlNode `xml:",any"`
	Text    string    `xml:",chardata"`
}

func (n *xmlNode) child(tag string) (*xmlNode, bool) {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == tag {
			return &n.Nodes[i], true
		}
	}
	return nil, false
}

func parseXML(r io.Reader, c xmlConfig) (*domain.Frame, error) {
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("fields are required")
	}
	var root xmlNode
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: parse xml: %w", domain.ErrSchemaMismatch, err)
	}

	names := make([]string, len(c.Fields))
	for i, fld := range c.Fields {
		names[i] = fld.Name
	}
	b, err := domain.NewBuilder(names...)
	if err != nil {
		return nil, err
	}

	row := make([]any, len(c.Fields))
	for i := range root.Nodes {
		el := &root.Nodes[i]
		if c.RowTag != "" && el.XMLName.Local != c.RowTag {
			continue
		}
		for j, fld := range c.Fields {
			tag := fld.Tag
			if tag == "" {
				tag = fld.Name
			}
			node, ok := el.child(tag)
			if !ok {
				return nil, fmt.Errorf("%w: row %d has no <%s> element", domain.ErrSchemaMismatch, b.Len()+1, tag)
			}
			v, err := parseKind(node.Text, fld.Kind)
			if err != nil {
				return nil, fmt.Errorf("row %d field %s: %w", b.Len()+1, fld.Name, err)
			}
			row[j] = v
		}
		if err := b.Append(row...); err != nil {
			return nil, err
		}
	}
	return b.Frame(), nil
}
