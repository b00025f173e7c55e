// Package allocation reads emission allowances from CUE files and seeds
// them into a ledger.
//
// A file declares one struct per entity under allocations:
//
//	allocations: {
//		Acme: allowed:   100
//		Globex: allowed: 50
//	}
//
// The file is unified with an embedded schema, so a negative or
// non-integer allowance, or an unknown field, is rejected with its
// source position.
package allocation

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/carbonledger/internal/ledger"
)

//go:embed schema.cue
var schemaSrc []byte

// Allocation is one entity's opening allowance.
type Allocation struct {
	Name    string
	Allowed int64
}

// Error is a problem in an allocation file with its source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and parses the allocation file at path.
func Load(path string) ([]Allocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allocations: %w", err)
	}
	return Parse(path, data)
}

// Parse compiles data against the schema and returns the allocations
// sorted by name. filename is used in error positions.
func Parse(filename string, data []byte) ([]Allocation, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("allocation schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	allocsVal := v.LookupPath(cue.ParsePath("allocations"))
	if !allocsVal.Exists() {
		return nil, nil
	}
	iter, err := allocsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []Allocation
	seen := make(map[string]token.Pos)
	for iter.Next() {
		raw := iter.Selector().Unquoted()
		name := ledger.CanonicalName(raw)
		if name == "" {
			return nil, &Error{
				Field:   "allocations",
				Message: fmt.Sprintf("entity name %q is empty", raw),
				Pos:     iter.Value().Pos(),
			}
		}
		if prev, dup := seen[name]; dup {
			return nil, &Error{
				Field:   "allocations." + name,
				Message: fmt.Sprintf("declared twice (first at line %d)", prev.Line()),
				Pos:     iter.Value().Pos(),
			}
		}
		seen[name] = iter.Value().Pos()

		allowed, err := iter.Value().LookupPath(cue.ParsePath("allowed")).Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, Allocation{Name: name, Allowed: allowed})
	}

	slices.SortFunc(out, func(a, b Allocation) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	path := strings.Join(first.Path(), ".")
	if path == "" {
		path = "cue"
	}
	var pos token.Pos
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	format, args := first.Msg()
	return &Error{Field: path, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// Registrar is the part of the ledger Seed needs.
type Registrar interface {
	Register(ctx context.Context, name string, allowed int64) (ledger.Entity, error)
}

// Report lists what Seed did.
type Report struct {
	Registered []ledger.Entity
	Skipped    []string
}

// Seed registers every allocation in order. Entities that already exist
// are recorded in Skipped; any other failure stops the run and is
// returned with the report so far.
func Seed(ctx context.Context, r Registrar, allocs []Allocation) (Report, error) {
	var rep Report
	for _, a := range allocs {
		e, err := r.Register(ctx, a.Name, a.Allowed)
		switch {
		case err == nil:
			rep.Registered = append(rep.Registered, e)
		case errors.Is(err, ledger.ErrDuplicateEntity):
			rep.Skipped = append(rep.Skipped, a.Name)
		default:
			return rep, fmt.Errorf("seed %q: %w", a.Name, err)
		}
	}
	return rep, nil
}
