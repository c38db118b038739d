package errors

import (
	stdErrors "errors"
	"fmt"

	legacypgconn "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetail is the driver-independent view of a postgres error.
type PGDetail struct {
	Code       string `json:"pg_code"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// ErrorDump is what gets logged for a failed request. It is never rendered
// to callers.
type ErrorDump struct {
	Top   string    `json:"error_top"`
	Code  Code      `json:"error_code,omitempty"`
	Chain []string  `json:"error_chain,omitempty"`
	PG    *PGDetail `json:"pg,omitempty"`
}

func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_top": d.Top}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		if d.PG.Constraint != "" {
			fields["pg_constraint"] = d.PG.Constraint
		}
		if d.PG.Table != "" {
			fields["pg_table"] = d.PG.Table
		}
		if d.PG.Column != "" {
			fields["pg_column"] = d.PG.Column
		}
		if d.PG.Detail != "" {
			fields["pg_detail"] = d.PG.Detail
		}
		fields["pg_message"] = d.PG.Message
	}
	return fields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Top: err.Error(), PG: pgDetailOf(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.code
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}
	return d
}

// pgDetailOf checks pgx v5 first, then the v4 pgconn type goose still
// surfaces, then lib/pq.
func pgDetailOf(err error) *PGDetail {
	if pe := (*pgconn.PgError)(nil); stdErrors.As(err, &pe) {
		return &PGDetail{pe.Code, pe.ConstraintName, pe.TableName, pe.ColumnName, pe.Detail, pe.Message}
	}
	if pe := (*legacypgconn.PgError)(nil); stdErrors.As(err, &pe) {
		return &PGDetail{pe.Code, pe.ConstraintName, pe.TableName, pe.ColumnName, pe.Detail, pe.Message}
	}
	if pe := (*pq.Error)(nil); stdErrors.As(err, &pe) {
		return &PGDetail{string(pe.Code), pe.Constraint, pe.Table, pe.Column, pe.Detail, pe.Message}
	}
	return nil
}

