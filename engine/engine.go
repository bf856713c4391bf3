// Package engine wires the five pipeline stages — parser, planbuilder,
// analyzer, render, emitter — behind the single `execute` entry point spec
// §6.1 describes, plus the administrative operations of §6.4. It plays the
// role the teacher's driver/driver.go and engine/sqlengine.go play for
// go-mysql-server: a top-level object holding a catalog reference, wrapping
// each request in a correlation id, tracing spans, structured logging, and
// request metrics (§2.1's "one structured line per request").
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pborman/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/cypher/parser"
	"github.com/genezhang/clickgraph/sql/analyzer"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/emitter"
	"github.com/genezhang/clickgraph/sql/plan"
	"github.com/genezhang/clickgraph/sql/planbuilder"
	"github.com/genezhang/clickgraph/sql/render"
)

// defaultVarLengthCeiling mirrors the parser's own default (spec §6.5); the
// engine re-declares it rather than importing the parser's unexported
// constant, since the two ceilings are configured independently in
// principle (the parser only stores its own and does not check *N..M bounds
// against it; this one bounds how many hops the render planner's recursive
// CTE will unroll).
const defaultVarLengthCeiling = 100

// Executor sends the emitted SQL to a backing store and returns the result
// set. It is the boundary spec §1 places outside this core ("SQL → rows,
// handed to an external executor") — the engine never opens a connection
// itself, it only calls through this interface.
type Executor interface {
	Query(ctx context.Context, sql string, params map[string]interface{}) (columns []string, rows [][]interface{}, err error)
}

// RequestContext carries the per-request parameters every pipeline stage's
// tracing span and log line is tagged with (spec §4.4.5's "context struct"
// discipline, applied one level up at the request boundary): a correlation
// id minted with pborman/uuid (the same package google-badwolf's BQL
// driver/session layer uses for request ids), the target schema name, and
// the wall-time deadline requests are cancelled against (spec §5's
// "configurable per-request ceiling").
type RequestContext struct {
	CorrelationID string
	SchemaName    string
	Deadline      time.Time
}

// Result is the successful outcome of Execute (spec §6.1's `{columns,
// rows}`).
type Result struct {
	Columns []string
	Rows    [][]interface{}
	SQL     string
}

// Engine is the top-level wiring object. The zero value is not usable;
// construct with New.
type Engine struct {
	Catalog          *catalog.Catalog
	Executor         Executor
	VarLengthCeiling uint32
	RequestTimeout   time.Duration

	log            *logrus.Entry
	requestCounter *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
}

// New constructs an Engine over an already-populated Catalog and a pluggable
// Executor. VarLengthCeiling of 0 defaults to 100 per spec §6.5.
func New(cat *catalog.Catalog, exec Executor, varLengthCeiling uint32) *Engine {
	if varLengthCeiling == 0 {
		varLengthCeiling = defaultVarLengthCeiling
	}
	return &Engine{
		Catalog:          cat,
		Executor:         exec,
		VarLengthCeiling: varLengthCeiling,
		log:              logrus.WithField("system", "engine"),
		requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clickgraph_requests_total",
			Help: "Total number of executed Cypher requests, by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "clickgraph_stage_duration_seconds",
			Help: "Duration of each pipeline stage, in seconds.",
		}, []string{"stage"}),
	}
}

// Collectors returns the engine's Prometheus collectors for registration
// with a caller-owned registry (the engine never registers itself against
// the global default registry, so a process embedding more than one Engine
// does not collide on metric names).
func (e *Engine) Collectors() []prometheus.Collector {
	return []prometheus.Collector{e.requestCounter, e.stageDuration}
}

// Execute is the single entry point into the core (spec §6.1), invoked by
// both the HTTP handler and the wire-protocol handler (external
// collaborators, not implemented here). schemaName defaults to
// catalog.DefaultSchemaName.
func (e *Engine) Execute(ctx context.Context, query string, params map[string]interface{}, schemaName string) (*Result, error) {
	rc := e.newRequestContext(schemaName)
	start := time.Now()

	span, ctx := opentracing.StartSpanFromContext(ctx, "engine.Execute")
	span.SetTag("correlation_id", rc.CorrelationID)
	span.SetTag("schema", rc.SchemaName)
	defer span.Finish()

	if e.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.RequestTimeout)
		defer cancel()
	}

	res, err := e.compile(ctx, query, rc)
	if err != nil {
		e.logOutcome(rc, query, time.Since(start), err)
		return nil, err
	}

	columns, rows, err := e.runQuery(ctx, res.SQL, params)
	if err != nil {
		e.logOutcome(rc, query, time.Since(start), err)
		return nil, err
	}

	e.logOutcome(rc, query, time.Since(start), nil)
	return &Result{Columns: columns, Rows: rows, SQL: res.SQL}, nil
}

// Explain compiles a query through every stage and returns the emitted SQL
// plus a textual dump of the RenderPlan tree, without executing either
// against the backing store — the same compile path Execute takes, stopping
// one stage earlier and retaining the intermediate RenderPlan for the dump.
func (e *Engine) Explain(ctx context.Context, query string, schemaName string) (string, error) {
	rc := e.newRequestContext(schemaName)
	span, ctx := opentracing.StartSpanFromContext(ctx, "engine.Explain")
	span.SetTag("correlation_id", rc.CorrelationID)
	defer span.Finish()

	res, err := e.compile(ctx, query, rc)
	if err != nil {
		return "", err
	}
	return res.SQL + "\n\n-- plan --\n" + render.Dump(res.Plan), nil
}

type compiledQuery struct {
	SQL     string
	Columns []string
	Plan    *render.RenderPlan
}

// compile runs the parser → planbuilder → analyzer → render → emitter
// chain, timing each stage into stageDuration (spec §2.1's per-stage
// tracing, mirrored as a metric alongside the opentracing spans).
func (e *Engine) compile(ctx context.Context, query string, rc RequestContext) (*compiledQuery, error) {
	schema, err := e.Catalog.GetSchema(rc.SchemaName)
	if err != nil {
		return nil, err
	}

	var q *ast.Query
	if err := e.timedStage(ctx, "parse", func() (err error) {
		q, err = parser.Parse(query)
		return err
	}); err != nil {
		return nil, err
	}

	var root plan.Node
	var pctx *planbuilder.Context
	if err := e.timedStage(ctx, "planbuild", func() (err error) {
		root, pctx, err = planbuilder.Build(q)
		return err
	}); err != nil {
		return nil, err
	}

	var analyzed *analyzer.Result
	if err := e.timedStage(ctx, "analyze", func() (err error) {
		analyzed, err = analyzer.Analyze(root, pctx, schema)
		return err
	}); err != nil {
		return nil, err
	}

	var rp *render.RenderPlan
	if err := e.timedStage(ctx, "render", func() (err error) {
		rp, err = render.Build(analyzed, schema, e.VarLengthCeiling)
		return err
	}); err != nil {
		return nil, err
	}

	var sqlText string
	if err := e.timedStage(ctx, "emit", func() (err error) {
		sqlText, err = emitter.Emit(rp)
		return err
	}); err != nil {
		return nil, err
	}

	cols := make([]string, len(rp.Projection))
	for i, p := range rp.Projection {
		if p.Alias != "" {
			cols[i] = p.Alias
		} else {
			cols[i] = fmt.Sprintf("col%d", i)
		}
	}

	return &compiledQuery{SQL: sqlText, Columns: cols, Plan: rp}, nil
}

func (e *Engine) runQuery(ctx context.Context, sqlText string, params map[string]interface{}) ([]string, [][]interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, nil, cerrors.ErrExecutionTimeout.New(e.RequestTimeout)
	default:
	}
	columns, rows, err := e.Executor.Query(ctx, sqlText, params)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil, cerrors.ErrExecutionTimeout.New(e.RequestTimeout)
		}
		return nil, nil, cerrors.ErrBackend.New(err.Error())
	}
	return columns, rows, nil
}

func (e *Engine) timedStage(ctx context.Context, stage string, fn func() error) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "engine."+stage)
	defer span.Finish()
	start := time.Now()
	err := fn()
	e.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetTag("error", true)
	}
	return err
}

func (e *Engine) newRequestContext(schemaName string) RequestContext {
	if schemaName == "" {
		schemaName = catalog.DefaultSchemaName
	}
	rc := RequestContext{CorrelationID: uuid.New(), SchemaName: schemaName}
	if e.RequestTimeout > 0 {
		rc.Deadline = time.Now().Add(e.RequestTimeout)
	}
	return rc
}

func (e *Engine) logOutcome(rc RequestContext, query string, d time.Duration, err error) {
	fields := logrus.Fields{
		"correlation_id": rc.CorrelationID,
		"schema":         rc.SchemaName,
		"query":          query,
		"duration":       d,
		"success":        true,
	}
	outcome := "success"
	if err != nil {
		fields["success"] = false
		fields["err"] = err
		outcome = "error"
	}
	e.requestCounter.WithLabelValues(outcome).Inc()
	if err != nil {
		e.log.WithFields(fields).Warn("request completed")
		return
	}
	e.log.WithFields(fields).Info("request completed")
}

// LoadSchema registers a new named schema (spec §6.4).
func (e *Engine) LoadSchema(name string, schema *catalog.GraphSchema) error {
	return e.Catalog.LoadSchema(name, schema)
}

// ListSchemas returns every registered schema name (spec §6.4).
func (e *Engine) ListSchemas() []string {
	return e.Catalog.ListSchemas()
}

// RemoveSchema unregisters a schema, refusing to remove "default" (spec
// §6.4).
func (e *Engine) RemoveSchema(name string) error {
	return e.Catalog.RemoveSchema(name)
}
