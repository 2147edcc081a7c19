// Package testutil provides shared matrix helpers for tests.
package testutil

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// DenseFromRows builds a matrix from row slices. All rows must have the same
// length.
func DenseFromRows(t testing.TB, rows [][]float64) *mat.Dense {
	t.Helper()
	if len(rows) == 0 || len(rows[0]) == 0 {
		return &mat.Dense{}
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			t.Fatalf("row %d has %d columns, want %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), cols, data)
}

// AssertDenseEqual fails the test unless got matches want element-wise
// within tol.
func AssertDenseEqual(t testing.TB, want, got mat.Matrix, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	if wr != gr || wc != gc {
		t.Fatalf("dims = %dx%d, want %dx%d", gr, gc, wr, wc)
	}
	if !mat.EqualApprox(want, got, tol) {
		t.Errorf("matrices differ:\n got  %v\n want %v",
			mat.Formatted(got, mat.Squeeze()), mat.Formatted(want, mat.Squeeze()))
	}
}
