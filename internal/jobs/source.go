package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSource marks creation options rejected at construction time.
var ErrInvalidSource = errors.New("invalid source")

// Kind identifies the source variant an asset is built from.
type Kind string

const (
	KindTable  Kind = "table"
	KindVector Kind = "vector"
)

// Source is a validated source specification. Only the variants in this
// package implement it.
type Source interface {
	Kind() Kind
	SourceURIs() []string
	isSource()
}

// Index describes one index to build on the materialised table.
type Index struct {
	ColumnName string `json:"column_name"`
	IndexType  string `json:"index_type"`
}

// FieldType is one column of a table schema.
type FieldType struct {
	FieldName string `json:"field_name"`
	FieldType string `json:"field_type"`
}

// Partitions describes how a table is partitioned. Schema is either a JSON
// list of per-partition entries or a single JSON object.
type Partitions struct {
	PartitionType   string          `json:"partition_type"`
	PartitionColumn string          `json:"partition_column"`
	PartitionSchema json.RawMessage `json:"partition_schema"`
}

// TableOptions are the creation options of a delimited text source.
type TableOptions struct {
	SrcDriver   string      `json:"src_driver"`
	Delimiter   string      `json:"delimiter"`
	HasHeader   bool        `json:"has_header"`
	Latitude    string      `json:"latitude,omitempty"`
	Longitude   string      `json:"longitude,omitempty"`
	Cluster     *Index      `json:"cluster,omitempty"`
	Partitions  *Partitions `json:"partitions,omitempty"`
	Indices     []Index     `json:"indices,omitempty"`
	TableSchema []FieldType `json:"table_schema,omitempty"`
}

// VectorOptions are the creation options of a vector (OGR readable) source.
type VectorOptions struct {
	SrcDriver string   `json:"src_driver"`
	Zipped    bool     `json:"zipped"`
	Layers    []string `json:"layers,omitempty"`
	Indices   []Index  `json:"indices,omitempty"`
}

// TableSource is the table variant of Source.
type TableSource struct {
	URIs    []string
	Options TableOptions
}

// VectorSource is the vector variant of Source.
type VectorSource struct {
	URI     string
	Options VectorOptions
}

func (*TableSource) Kind() Kind              { return KindTable }
func (s *TableSource) SourceURIs() []string  { return s.URIs }
func (*TableSource) isSource()               {}
func (*VectorSource) Kind() Kind             { return KindVector }
func (s *VectorSource) SourceURIs() []string { return []string{s.URI} }
func (*VectorSource) isSource()              {}

var (
	indexTypes     = map[string]bool{"gist": true, "btree": true, "hash": true}
	partitionTypes = map[string]bool{"range": true, "list": true, "hash": true}
)

// DefaultVectorIndices are built when a vector source requests none.
func DefaultVectorIndices() []Index {
	return []Index{
		{ColumnName: "geom", IndexType: "gist"},
		{ColumnName: "geom_wm", IndexType: "gist"},
		{ColumnName: "gfw_geostore_id", IndexType: "hash"},
	}
}

func invalidSource(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSource, fmt.Sprintf(format, args...))
}

// NewTableSource validates table options and returns the table variant.
func NewTableSource(uris []string, opts TableOptions) (*TableSource, error) {
	if err := validateURIs(uris); err != nil {
		return nil, err
	}
	if opts.Delimiter == "" {
		opts.Delimiter = ","
	}
	if (opts.Latitude == "") != (opts.Longitude == "") {
		return nil, invalidSource("latitude and longitude must be set together")
	}
	if err := validateIndices(opts.Indices); err != nil {
		return nil, err
	}
	if opts.Cluster != nil {
		if err := validateIndices([]Index{*opts.Cluster}); err != nil {
			return nil, err
		}
	}
	for _, f := range opts.TableSchema {
		if f.FieldName == "" || f.FieldType == "" {
			return nil, invalidSource("table schema fields need a name and a type")
		}
	}
	if opts.Partitions != nil {
		if !partitionTypes[opts.Partitions.PartitionType] {
			return nil, invalidSource("unsupported partition type %q", opts.Partitions.PartitionType)
		}
		if opts.Partitions.PartitionColumn == "" {
			return nil, invalidSource("partition column is required")
		}
		entries, _, err := opts.Partitions.entries()
		if err != nil {
			return nil, err
		}
		if len(entries) > MaxPartitions {
			return nil, invalidSource("partition schema has %d entries, at most %d are supported", len(entries), MaxPartitions)
		}
	}
	return &TableSource{URIs: append([]string(nil), uris...), Options: opts}, nil
}

// NewVectorSource validates vector options. Vector sources take exactly one URI.
func NewVectorSource(uris []string, opts VectorOptions) (*VectorSource, error) {
	if err := validateURIs(uris); err != nil {
		return nil, err
	}
	if len(uris) != 1 {
		return nil, invalidSource("vector sources only support one input file, got %d", len(uris))
	}
	for _, l := range opts.Layers {
		if strings.TrimSpace(l) == "" {
			return nil, invalidSource("layer names must not be empty")
		}
	}
	if opts.Indices == nil {
		opts.Indices = DefaultVectorIndices()
	}
	if err := validateIndices(opts.Indices); err != nil {
		return nil, err
	}
	return &VectorSource{URI: uris[0], Options: opts}, nil
}

// ParseSource decodes raw creation options into the variant named by kind.
func ParseSource(kind string, uris []string, options json.RawMessage) (Source, error) {
	if len(bytes.TrimSpace(options)) == 0 {
		options = json.RawMessage("{}")
	}
	switch Kind(kind) {
	case KindTable:
		var opts TableOptions
		if err := strictUnmarshal(options, &opts); err != nil {
			return nil, invalidSource("table creation options: %v", err)
		}
		return NewTableSource(uris, opts)
	case KindVector:
		var opts VectorOptions
		if err := strictUnmarshal(options, &opts); err != nil {
			return nil, invalidSource("vector creation options: %v", err)
		}
		return NewVectorSource(uris, opts)
	default:
		return nil, invalidSource("unsupported source type %q", kind)
	}
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validateURIs(uris []string) error {
	if len(uris) == 0 {
		return invalidSource("at least one source uri is required")
	}
	for _, u := range uris {
		if strings.TrimSpace(u) == "" {
			return invalidSource("source uris must not be empty")
		}
	}
	return nil
}

func validateIndices(indices []Index) error {
	for _, idx := range indices {
		if idx.ColumnName == "" {
			return invalidSource("index column name is required")
		}
		if !indexTypes[idx.IndexType] {
			return invalidSource("unsupported index type %q", idx.IndexType)
		}
	}
	return nil
}

// entries splits the partition schema. A list yields its entries in order and
// isList=true; a single object yields itself.
func (p *Partitions) entries() (entries []json.RawMessage, isList bool, err error) {
	raw := bytes.TrimSpace(p.PartitionSchema)
	if len(raw) == 0 {
		return nil, false, invalidSource("partition schema is required")
	}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, false, invalidSource("partition schema: %v", err)
		}
		if len(entries) == 0 {
			return nil, false, invalidSource("partition schema list is empty")
		}
		return entries, true, nil
	}
	if raw[0] != '{' {
		return nil, false, invalidSource("partition schema must be an object or a list")
	}
	if !json.Valid(raw) {
		return nil, false, invalidSource("partition schema is not valid JSON")
	}
	return []json.RawMessage{json.RawMessage(raw)}, false, nil
}
