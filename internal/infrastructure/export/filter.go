package export

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/domain/client"
)

// Variables visible to row filter expressions.
var rowEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("taxId", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("phone", cel.StringType),
		cel.Variable("postalCode", cel.StringType),
		cel.Variable("active", cel.BoolType),
	)
})

// RowFilter is a compiled boolean CEL expression over report row fields,
// e.g. `kind == "COMPANY" && active && email.endsWith("@acme.com")`.
type RowFilter struct {
	expr string
	prg  cel.Program
}

// CompileFilter parses and type-checks expr. Errors are validation errors on
// the "where" field.
func CompileFilter(expr string) (*RowFilter, error) {
	env, err := rowEnv()
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, apperror.NewFieldValidation("where", "invalid", "invalid filter expression").
			WithDetail("error", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperror.NewFieldValidation("where", "type", "filter expression must evaluate to bool").
			WithDetail("type", ast.OutputType().String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}
	return &RowFilter{expr: expr, prg: prg}, nil
}

// Match reports whether row satisfies the expression.
func (f *RowFilter) Match(row client.ReportRow) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"id":         row.ID.Int64(),
		"kind":       string(row.Kind),
		"taxId":      row.TaxID,
		"name":       row.DisplayName,
		"email":      row.Email,
		"phone":      row.Phone,
		"postalCode": row.PostalCode,
		"active":     row.Active,
	})
	if err != nil {
		return false, apperror.NewFieldValidation("where", "eval", "filter expression failed").
			WithDetail("error", err.Error())
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

// Apply returns the rows that match, in order.
func (f *RowFilter) Apply(rows []client.ReportRow) ([]client.ReportRow, error) {
	out := make([]client.ReportRow, 0, len(rows))
	for _, row := range rows {
		ok, err := f.Match(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *RowFilter) String() string {
	return f.expr
}
