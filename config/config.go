// Package config loads the declarative schema configuration (spec §6.3)
// from YAML into the in-memory catalog.GraphSchema the core pipeline
// consumes. It is an external collaborator, not part of the five-stage
// core itself — the way the teacher's driver/ package ships a reference
// database/sql binding without being part of the engine proper.
package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/genezhang/clickgraph/sql/catalog"
)

// NodeConfig is one YAML node entry (spec §6.3's "node entry"): a cypher
// label, its physical source table (optionally schema-qualified), its id
// column, and the cypher-property → physical-column map.
type NodeConfig struct {
	Label       string            `yaml:"label"`
	Table       string            `yaml:"table"`
	IDColumn    string            `yaml:"id_column"`
	Properties  map[string]string `yaml:"properties"`
}

// RelConfig is one YAML relationship entry (spec §6.3's "relationship
// entry"): a cypher type name, its physical edge table, both endpoint
// columns, both endpoint labels, and its own property map.
type RelConfig struct {
	Type         string            `yaml:"type"`
	Table        string            `yaml:"table"`
	FromColumn   string            `yaml:"from_column"`
	ToColumn     string            `yaml:"to_column"`
	FromLabel    string            `yaml:"from_label"`
	ToLabel      string            `yaml:"to_label"`
	Properties   map[string]string `yaml:"properties"`
}

// SchemaConfig is one named graph schema's on-disk declarative form.
type SchemaConfig struct {
	Name          string      `yaml:"name"`
	Nodes         []NodeConfig `yaml:"nodes"`
	Relationships []RelConfig  `yaml:"relationships"`
}

// File is the top-level YAML document shape: a list of named schemas, so a
// single config file can seed a catalog with more than one graph view at
// startup (the administrative "load_schema" path of spec §6.4 takes one of
// these per call; a File is simply a batch of them).
type File struct {
	Schemas []SchemaConfig `yaml:"schemas"`
}

// ParseFile reads and unmarshals a YAML schema config document.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}

// ToGraphSchema converts one parsed SchemaConfig into the catalog's
// in-memory GraphSchema shape. It performs no validation itself —
// catalog.Catalog.LoadSchema is the single place that enforces spec §4.6's
// registration invariants, so a malformed config is only ever rejected
// once, at registration time.
func (sc SchemaConfig) ToGraphSchema() *catalog.GraphSchema {
	gs := &catalog.GraphSchema{
		Name:          sc.Name,
		Nodes:         make(map[string]catalog.NodeMapping, len(sc.Nodes)),
		Relationships: make(map[string]catalog.RelMapping, len(sc.Relationships)),
	}
	for _, n := range sc.Nodes {
		gs.Nodes[n.Label] = catalog.NodeMapping{
			SourceTable: n.Table,
			IDColumn:    n.IDColumn,
			PropertyMap: n.Properties,
		}
	}
	for _, r := range sc.Relationships {
		gs.Relationships[r.Type] = catalog.RelMapping{
			SourceTable:  r.Table,
			FromIDColumn: r.FromColumn,
			ToIDColumn:   r.ToColumn,
			FromLabel:    r.FromLabel,
			ToLabel:      r.ToLabel,
			PropertyMap:  r.Properties,
		}
	}
	return gs
}

// LoadInto parses a YAML config file and registers every schema it
// declares into cat, via catalog.Catalog.LoadAll so the registrations
// fan out concurrently and the first validation failure is surfaced.
func LoadInto(cat *catalog.Catalog, path string) error {
	f, err := ParseFile(path)
	if err != nil {
		return err
	}
	schemas := make(map[string]*catalog.GraphSchema, len(f.Schemas))
	for _, sc := range f.Schemas {
		schemas[sc.Name] = sc.ToGraphSchema()
	}
	return cat.LoadAll(context.Background(), schemas)
}
