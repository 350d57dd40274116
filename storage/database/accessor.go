package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trezcool/mycourse/core"
)

const tracerName = "github.com/trezcool/mycourse/storage/database"

type (
	// DataRow maps column names to raw values.
	DataRow map[string]interface{}

	DataTable struct {
		Columns []string
		Rows    []DataRow
	}

	// DataSet holds every result set returned by a query.
	DataSet struct {
		Tables []*DataTable
	}
)

// Table returns the i-th result set, or an empty table.
func (ds *DataSet) Table(i int) *DataTable {
	if ds == nil || i >= len(ds.Tables) {
		return &DataTable{}
	}
	return ds.Tables[i]
}

func (dt *DataTable) Len() int { return len(dt.Rows) }

// First returns the first row, or nil when the table is empty.
func (dt *DataTable) First() DataRow {
	if len(dt.Rows) == 0 {
		return nil
	}
	return dt.Rows[0]
}

func (r DataRow) IsNull(col string) bool {
	val, ok := r[col]
	return !ok || val == nil
}

func (r DataRow) String(col string) string {
	return cast.ToString(r[col])
}

func (r DataRow) Int64(col string) int64 {
	return cast.ToInt64(r[col])
}

func (r DataRow) Int(col string) int {
	return cast.ToInt(r[col])
}

func (r DataRow) Float64(col string) float64 {
	return cast.ToFloat64(r[col])
}

func (r DataRow) Bool(col string) bool {
	return cast.ToBool(r[col])
}

// Time returns the UTC value of col. Unparsable values are zero.
func (r DataRow) Time(col string) time.Time {
	if r.IsNull(col) {
		return time.Time{}
	}
	val := r[col]
	if b, ok := val.([]byte); ok {
		val = string(b)
	}
	t, err := cast.ToTimeE(val)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Accessor runs raw, parameterised SQL. Placeholders are written as `?` and rebound for the driver.
type Accessor struct {
	ext    sqlx.ExtContext
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewAccessor(db *sqlx.DB) *Accessor {
	return &Accessor{ext: db, db: db, tracer: otel.Tracer(tracerName)}
}

func (a *Accessor) startSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "db.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", a.ext.DriverName()),
			attribute.String("db.statement", query),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Query executes query and reads every result set.
func (a *Accessor) Query(ctx context.Context, query string, args ...interface{}) (ds *DataSet, err error) {
	ctx, span := a.startSpan(ctx, query)
	defer func() { endSpan(span, err) }()

	rows, err := a.ext.QueryxContext(ctx, a.ext.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying")
	}
	defer func() { _ = rows.Close() }()

	ds = new(DataSet)
	for {
		cols, cErr := rows.Columns()
		if cErr != nil {
			return nil, errors.Wrap(cErr, "reading columns")
		}
		table := &DataTable{Columns: cols}
		for rows.Next() {
			row := make(DataRow, len(cols))
			if err = rows.MapScan(row); err != nil {
				return nil, errors.Wrap(err, "scanning row")
			}
			table.Rows = append(table.Rows, row)
		}
		if err = rows.Err(); err != nil {
			return nil, errors.Wrap(err, "iterating rows")
		}
		ds.Tables = append(ds.Tables, table)

		if !rows.NextResultSet() {
			break
		}
	}
	return ds, nil
}

// Scalar returns the first column of the first row. It returns sql.ErrNoRows when nothing matched.
func (a *Accessor) Scalar(ctx context.Context, query string, args ...interface{}) (val interface{}, err error) {
	ctx, span := a.startSpan(ctx, query)
	defer func() { endSpan(span, err) }()

	rows, err := a.ext.QueryxContext(ctx, a.ext.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying scalar")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return nil, errors.Wrap(err, "querying scalar")
		}
		return nil, sql.ErrNoRows
	}
	cols, err := rows.SliceScan()
	if err != nil {
		return nil, errors.Wrap(err, "scanning scalar")
	}
	if len(cols) == 0 {
		return nil, sql.ErrNoRows
	}
	if b, ok := cols[0].([]byte); ok {
		return string(b), nil
	}
	return cols[0], nil
}

// Command executes a statement and returns the number of affected rows.
func (a *Accessor) Command(ctx context.Context, query string, args ...interface{}) (affected int64, err error) {
	ctx, span := a.startSpan(ctx, query)
	defer func() { endSpan(span, err) }()

	res, err := a.ext.ExecContext(ctx, a.ext.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "executing command")
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading affected rows")
	}
	return affected, nil
}

// InTx runs fn with an Accessor bound to a transaction. The transaction is rolled back when fn fails.
func (a *Accessor) InTx(ctx context.Context, fn func(tx *Accessor) error) error {
	if a.db == nil { // already in a transaction
		return fn(a)
	}
	return core.WithTx(ctx, a.db, func(tx core.DBTransactor) error {
		return fn(&Accessor{ext: tx, tracer: a.tracer})
	})
}

// IsPostgres reports whether the accessor talks to postgres.
func (a *Accessor) IsPostgres() bool {
	return strings.HasPrefix(a.ext.DriverName(), EnginePostgres)
}
