package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/sql/catalog"
)

const sampleYAML = `
schemas:
  - name: social
    nodes:
      - label: User
        table: social.users
        id_column: user_id
        properties:
          name: full_name
    relationships:
      - type: FOLLOWS
        table: social.user_follows
        from_column: follower_id
        to_column: followed_id
        from_label: User
        to_label: User
        properties: {}
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseFileProducesExpectedShape(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	f, err := ParseFile(path)
	require.NoError(t, err)

	require.Len(t, f.Schemas, 1)
	sc := f.Schemas[0]
	require.Equal(t, "social", sc.Name)
	require.Len(t, sc.Nodes, 1)
	require.Equal(t, "User", sc.Nodes[0].Label)
	require.Equal(t, "full_name", sc.Nodes[0].Properties["name"])
	require.Len(t, sc.Relationships, 1)
	require.Equal(t, "FOLLOWS", sc.Relationships[0].Type)
}

func TestToGraphSchemaConvertsAllFields(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	f, err := ParseFile(path)
	require.NoError(t, err)

	gs := f.Schemas[0].ToGraphSchema()
	require.Equal(t, "social", gs.Name)

	nm, err := gs.ResolveNode("User")
	require.NoError(t, err)
	require.Equal(t, "social.users", nm.SourceTable)
	require.Equal(t, "user_id", nm.IDColumn)

	rm, err := gs.ResolveRel("FOLLOWS")
	require.NoError(t, err)
	require.Equal(t, "social.user_follows", rm.SourceTable)
	require.Equal(t, "follower_id", rm.FromIDColumn)
	require.Equal(t, "followed_id", rm.ToIDColumn)
}

func TestLoadIntoRegistersEverySchema(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cat := catalog.New()
	require.NoError(t, LoadInto(cat, path))

	gs, err := cat.GetSchema("social")
	require.NoError(t, err)
	require.Equal(t, "social", gs.Name)
}

func TestLoadIntoRejectsMissingIDColumn(t *testing.T) {
	path := writeTemp(t, `
schemas:
  - name: broken
    nodes:
      - label: User
        table: social.users
    relationships: []
`)
	cat := catalog.New()
	err := LoadInto(cat, path)
	require.Error(t, err)
}
