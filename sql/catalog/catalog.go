// Package catalog implements the view catalog (spec §3.4, §4.6): a
// process-wide registry of named graph schemas that resolve Cypher labels
// and relationship types to physical tables/columns. Its RWMutex-guarded,
// copy-on-publish map follows the guard pattern the teacher uses in
// auth/native.go for its own in-memory user table, and registration
// validation is aggregated with github.com/hashicorp/go-multierror so every
// missing column is reported in one pass instead of failing fast on the
// first.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/genezhang/clickgraph/sql/cerrors"
)

// DefaultSchemaName is the canonical schema always present in a Catalog.
const DefaultSchemaName = "default"

// NodeMapping resolves one Cypher label to its physical backing.
type NodeMapping struct {
	SourceTable  string
	IDColumn     string
	PropertyMap  map[string]string // cypher property -> physical column
}

// RelMapping resolves one Cypher relationship type to its physical edge
// table, including both endpoint columns and endpoint labels.
type RelMapping struct {
	SourceTable    string
	FromIDColumn   string
	ToIDColumn     string
	FromLabel      string
	ToLabel        string
	PropertyMap    map[string]string
}

// GraphSchema is one named property-graph view over relational tables. Name
// is set by the Catalog at registration time and used only for error
// messages.
type GraphSchema struct {
	Name          string
	Nodes         map[string]NodeMapping
	Relationships map[string]RelMapping
}

// ResolveNode looks up a label's NodeMapping.
func (s *GraphSchema) ResolveNode(label string) (NodeMapping, error) {
	nm, ok := s.Nodes[label]
	if !ok {
		return NodeMapping{}, cerrors.ErrUnknownLabel.New(label, s.Name)
	}
	return nm, nil
}

// ResolveRel looks up a relationship type's RelMapping.
func (s *GraphSchema) ResolveRel(relType string) (RelMapping, error) {
	rm, ok := s.Relationships[relType]
	if !ok {
		return RelMapping{}, cerrors.ErrUnknownRelationshipType.New(relType, s.Name)
	}
	return rm, nil
}

// ResolveProperty maps a cypher property name on a label to its physical
// column. There is deliberately no fallback to an identity mapping: absence
// is always an error (spec §4.6).
func (s *GraphSchema) ResolveProperty(label, property string) (string, error) {
	nm, err := s.ResolveNode(label)
	if err != nil {
		return "", err
	}
	col, ok := nm.PropertyMap[property]
	if !ok {
		return "", cerrors.ErrPropertyNotFound.New(property, label)
	}
	return col, nil
}

// validate enforces §4.6's registration invariants: every declared label
// has an id column and every declared relationship has both endpoint
// columns. It collects every violation via go-multierror rather than
// stopping at the first.
func (s *GraphSchema) validate() error {
	var result *multierror.Error
	for label, nm := range s.Nodes {
		if nm.SourceTable == "" {
			result = multierror.Append(result, fmt.Errorf("label %q declares no source table", label))
		}
		if nm.IDColumn == "" {
			result = multierror.Append(result, fmt.Errorf("label %q declares no id column", label))
		}
	}
	for relType, rm := range s.Relationships {
		if rm.SourceTable == "" {
			result = multierror.Append(result, fmt.Errorf("relationship %q declares no source table", relType))
		}
		if rm.FromIDColumn == "" {
			result = multierror.Append(result, fmt.Errorf("relationship %q declares no from-endpoint column", relType))
		}
		if rm.ToIDColumn == "" {
			result = multierror.Append(result, fmt.Errorf("relationship %q declares no to-endpoint column", relType))
		}
		if rm.FromLabel == "" || rm.ToLabel == "" {
			result = multierror.Append(result, fmt.Errorf("relationship %q must declare both endpoint labels", relType))
		}
	}
	if result != nil {
		return cerrors.ErrValidation.New(result.Error())
	}
	return nil
}

// Catalog is the process-wide schema registry (spec §3.4). The zero value
// is not usable; construct with New.
type Catalog struct {
	mu      sync.RWMutex
	schemas map[string]*GraphSchema
	log     *logrus.Entry
}

// New creates a Catalog with an empty "default" schema already registered,
// matching spec §3.4's "always containing a canonical default entry".
func New() *Catalog {
	c := &Catalog{
		schemas: map[string]*GraphSchema{
			DefaultSchemaName: {Name: DefaultSchemaName, Nodes: map[string]NodeMapping{}, Relationships: map[string]RelMapping{}},
		},
		log: logrus.WithField("system", "catalog"),
	}
	return c
}

// GetSchema returns the named schema, or ErrUnknownSchema.
func (c *Catalog) GetSchema(name string) (*GraphSchema, error) {
	if name == "" {
		name = DefaultSchemaName
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	if !ok {
		return nil, cerrors.ErrUnknownSchema.New(name)
	}
	return s, nil
}

// LoadSchema registers a new named schema. A failed validation does not
// mutate the catalog; a successful one atomically publishes a fresh map so
// concurrent readers never observe a partial merge.
func (c *Catalog) LoadSchema(name string, schema *GraphSchema) error {
	schema.Name = name
	if err := schema.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]*GraphSchema, len(c.schemas)+1)
	for k, v := range c.schemas {
		next[k] = v
	}
	next[name] = schema
	c.schemas = next
	c.log.WithFields(logrus.Fields{"schema": name, "labels": len(schema.Nodes), "relationships": len(schema.Relationships)}).Info("schema registered")
	return nil
}

// LoadAll registers a batch of named schemas concurrently, one goroutine per
// schema with no limit on their number, using golang.org/x/sync/errgroup to
// surface the first validation failure.
func (c *Catalog) LoadAll(ctx context.Context, schemas map[string]*GraphSchema) error {
	g, _ := errgroup.WithContext(ctx)
	for name, schema := range schemas {
		name, schema := name, schema
		g.Go(func() error {
			return c.LoadSchema(name, schema)
		})
	}
	return g.Wait()
}

// ListSchemas returns every registered schema name.
func (c *Catalog) ListSchemas() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	return names
}

// RemoveSchema unregisters a schema, refusing to remove "default".
func (c *Catalog) RemoveSchema(name string) error {
	if name == DefaultSchemaName {
		return cerrors.ErrCannotRemoveDefault.New()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.schemas[name]; !ok {
		return cerrors.ErrNotFound.New(name)
	}
	next := make(map[string]*GraphSchema, len(c.schemas)-1)
	for k, v := range c.schemas {
		if k != name {
			next[k] = v
		}
	}
	c.schemas = next
	c.log.WithField("schema", name).Info("schema removed")
	return nil
}
