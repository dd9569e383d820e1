// Package tensor provides the dense matrix type and the backprop graph used
// by every network layer in the representation learner.
package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Mat is a dense row-major matrix carrying both values and gradients.
type Mat struct {
	Rows int
	Cols int
	Data []float64
	Grad []float64
}

// NewMat creates a zero-valued matrix.
func NewMat(rows, cols int) *Mat {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("tensor: invalid matrix shape %dx%d", rows, cols))
	}
	return &Mat{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
		Grad: make([]float64, rows*cols),
	}
}

// NewRandMat creates a matrix with entries drawn uniformly from
// (-scale/2, scale/2), matching the initialization used across the
// training engines.
func NewRandMat(rows, cols int, rng *rand.Rand, scale float64) *Mat {
	m := NewMat(rows, cols)
	for i := range m.Data {
		m.Data[i] = (rng.Float64() - 0.5) * scale
	}
	return m
}

// FromRows builds a matrix from a slice of equally sized rows. The input is
// copied, never aliased.
func FromRows(rows [][]float64) *Mat {
	if len(rows) == 0 {
		panic("tensor: FromRows requires at least one row")
	}
	m := NewMat(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != m.Cols {
			panic(fmt.Sprintf("tensor: ragged input row %d: %d != %d", r, len(row), m.Cols))
		}
		copy(m.Data[r*m.Cols:(r+1)*m.Cols], row)
	}
	return m
}

// At returns the element at (r, c).
func (m *Mat) At(r, c int) float64 { return m.Data[r*m.Cols+c] }

// Set assigns the element at (r, c).
func (m *Mat) Set(r, c int, v float64) { m.Data[r*m.Cols+c] = v }

// Row returns the r-th row as a slice view into the underlying data.
func (m *Mat) Row(r int) []float64 { return m.Data[r*m.Cols : (r+1)*m.Cols] }

// GradRow returns the r-th gradient row as a slice view.
func (m *Mat) GradRow(r int) []float64 { return m.Grad[r*m.Cols : (r+1)*m.Cols] }

// Clone returns a deep copy of the matrix values with zeroed gradients.
func (m *Mat) Clone() *Mat {
	out := NewMat(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

// ZeroGrad clears the accumulated gradient.
func (m *Mat) ZeroGrad() {
	for i := range m.Grad {
		m.Grad[i] = 0
	}
}

// RowNorm returns the L2 norm of row r.
func (m *Mat) RowNorm(r int) float64 {
	var sum float64
	for _, v := range m.Row(r) {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// SameShape reports whether two matrices have identical dimensions.
func (m *Mat) SameShape(other *Mat) bool {
	return m.Rows == other.Rows && m.Cols == other.Cols
}
