package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"google.golang.org/grpc/status"
)

// Diagnostics flattens an error chain into log fields. Postgres details
// come from either driver; gRPC status comes from Pub/Sub calls.
type Diagnostics struct {
	Code  Code
	Chain []string

	PGCode       string
	PGConstraint string
	PGTable      string
	PGDetail     string

	GRPCCode string
}

func Diagnose(err error) Diagnostics {
	var d Diagnostics
	if err == nil {
		return d
	}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}

	var grpcErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &grpcErr) {
		d.GRPCCode = grpcErr.GRPCStatus().Code().String()
	}
	return d
}

// Fields returns the non-empty diagnostics keyed for structured logs.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 0 {
		fields["error_chain"] = d.Chain
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_detail":     d.PGDetail,
		"grpc_code":     d.GRPCCode,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
