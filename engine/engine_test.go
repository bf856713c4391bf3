package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/sql/catalog"
)

type fakeExecutor struct {
	lastSQL    string
	lastParams map[string]interface{}
	columns    []string
	rows       [][]interface{}
	err        error
}

func (f *fakeExecutor) Query(ctx context.Context, sqlText string, params map[string]interface{}) ([]string, [][]interface{}, error) {
	f.lastSQL = sqlText
	f.lastParams = params
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.columns, f.rows, nil
}

func socialCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.LoadSchema("social", &catalog.GraphSchema{
		Nodes: map[string]catalog.NodeMapping{
			"User": {SourceTable: "social.users", IDColumn: "user_id", PropertyMap: map[string]string{"name": "full_name"}},
		},
		Relationships: map[string]catalog.RelMapping{
			"FOLLOWS": {
				SourceTable: "social.user_follows", FromIDColumn: "follower_id", ToIDColumn: "followed_id",
				FromLabel: "User", ToLabel: "User", PropertyMap: map[string]string{},
			},
		},
	}))
	return cat
}

func TestExecuteCompilesAndQueriesThroughExecutor(t *testing.T) {
	exec := &fakeExecutor{columns: []string{"name"}, rows: [][]interface{}{{"Alice"}}}
	e := New(socialCatalog(t), exec, 0)

	res, err := e.Execute(context.Background(), "MATCH (u:User) RETURN u.name", nil, "social")
	require.NoError(t, err)

	require.Equal(t, []string{"name"}, res.Columns)
	require.Equal(t, [][]interface{}{{"Alice"}}, res.Rows)
	require.Contains(t, res.SQL, "social.users")
	require.Contains(t, exec.lastSQL, "social.users")
}

func TestExecuteDefaultsToDefaultSchemaName(t *testing.T) {
	exec := &fakeExecutor{}
	e := New(catalog.New(), exec, 0)

	_, err := e.Execute(context.Background(), "MATCH (u:User) RETURN u.name", nil, "")
	require.Error(t, err, "the default schema has no User label registered")
}

func TestExplainReturnsSQLWithoutCallingExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	e := New(socialCatalog(t), exec, 0)

	out, err := e.Explain(context.Background(), "MATCH (u:User) RETURN u.name LIMIT 1", "social")
	require.NoError(t, err)
	require.Contains(t, out, "LIMIT 1")
	require.Empty(t, exec.lastSQL, "Explain must not invoke the executor")
}

func TestExplainAppendsRenderPlanDump(t *testing.T) {
	exec := &fakeExecutor{}
	e := New(socialCatalog(t), exec, 0)

	out, err := e.Explain(context.Background(), "MATCH (u:User) RETURN u.name LIMIT 1", "social")
	require.NoError(t, err)
	require.Contains(t, out, "-- plan --")
	require.Contains(t, out, "from:")
	require.Contains(t, out, "project:")
	require.Contains(t, out, "limit: 1")
}

func TestExecutePropagatesParseErrors(t *testing.T) {
	exec := &fakeExecutor{}
	e := New(socialCatalog(t), exec, 0)

	_, err := e.Execute(context.Background(), "THIS IS NOT CYPHER", nil, "social")
	require.Error(t, err)
}

func TestAdminOperationsDelegateToCatalog(t *testing.T) {
	e := New(catalog.New(), &fakeExecutor{}, 0)

	require.NoError(t, e.LoadSchema("extra", &catalog.GraphSchema{
		Nodes:         map[string]catalog.NodeMapping{"X": {SourceTable: "t", IDColumn: "id", PropertyMap: map[string]string{}}},
		Relationships: map[string]catalog.RelMapping{},
	}))
	require.Contains(t, e.ListSchemas(), "extra")

	require.Error(t, e.RemoveSchema(catalog.DefaultSchemaName))
	require.NoError(t, e.RemoveSchema("extra"))
}
