package tensor

import (
	"fmt"
	"math"
)

// Graph records the backward closures for a sequence of matrix operations.
// Calling Backward replays them in reverse, accumulating gradients into the
// Grad fields of every participating matrix.
//
// A graph constructed with needsBackprop=false records nothing, which is how
// no-gradient forward passes (momentum key networks, target stop-gradients)
// are realized.
type Graph struct {
	needsBackprop bool
	backprop      []func()
}

// NewGraph creates a computation graph. Pass false to run forward-only.
func NewGraph(needsBackprop bool) *Graph {
	return &Graph{needsBackprop: needsBackprop}
}

// NeedsBackprop reports whether the graph records backward closures.
func (g *Graph) NeedsBackprop() bool { return g.needsBackprop }

// AddBackward appends a custom backward closure. Layers with hand-derived
// gradients (convolution) use this directly.
func (g *Graph) AddBackward(f func()) {
	if g.needsBackprop {
		g.backprop = append(g.backprop, f)
	}
}

// Backward runs all recorded closures in reverse order.
func (g *Graph) Backward() {
	for i := len(g.backprop) - 1; i >= 0; i-- {
		g.backprop[i]()
	}
}

// MatMul computes out = a * b, with a of shape (m,k) and b of shape (k,n).
func (g *Graph) MatMul(a, b *Mat) *Mat {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("tensor: MatMul shape mismatch %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		arow := a.Row(i)
		orow := out.Row(i)
		for k, av := range arow {
			if av == 0 {
				continue
			}
			brow := b.Row(k)
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}
	g.AddBackward(func() {
		for i := 0; i < a.Rows; i++ {
			arow := a.Row(i)
			agrad := a.GradRow(i)
			ograd := out.GradRow(i)
			for k := range arow {
				brow := b.Row(k)
				bgrad := b.GradRow(k)
				var acc float64
				for j, gv := range ograd {
					acc += gv * brow[j]
					bgrad[j] += gv * arow[k]
				}
				agrad[k] += acc
			}
		}
	})
	return out
}

// MatMulT computes out = a * b^T, with a of shape (m,k) and b of shape (n,k).
func (g *Graph) MatMulT(a, b *Mat) *Mat {
	if a.Cols != b.Cols {
		panic(fmt.Sprintf("tensor: MatMulT shape mismatch %dx%d * (%dx%d)^T", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, b.Rows)
	for i := 0; i < a.Rows; i++ {
		arow := a.Row(i)
		orow := out.Row(i)
		for j := 0; j < b.Rows; j++ {
			brow := b.Row(j)
			var acc float64
			for k, av := range arow {
				acc += av * brow[k]
			}
			orow[j] = acc
		}
	}
	g.AddBackward(func() {
		for i := 0; i < a.Rows; i++ {
			arow := a.Row(i)
			agrad := a.GradRow(i)
			ograd := out.GradRow(i)
			for j := 0; j < b.Rows; j++ {
				gv := ograd[j]
				if gv == 0 {
					continue
				}
				brow := b.Row(j)
				bgrad := b.GradRow(j)
				for k := range arow {
					agrad[k] += gv * brow[k]
					bgrad[k] += gv * arow[k]
				}
			}
		}
	})
	return out
}

// Add computes the elementwise sum of two equally shaped matrices.
func (g *Graph) Add(a, b *Mat) *Mat {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("tensor: Add shape mismatch %dx%d + %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, a.Cols)
	for i := range out.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			a.Grad[i] += gv
			b.Grad[i] += gv
		}
	})
	return out
}

// Sub computes a - b elementwise.
func (g *Graph) Sub(a, b *Mat) *Mat {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("tensor: Sub shape mismatch %dx%d - %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, a.Cols)
	for i := range out.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			a.Grad[i] += gv
			b.Grad[i] -= gv
		}
	})
	return out
}

// AddBias broadcasts a 1-row bias over every row of a.
func (g *Graph) AddBias(a, bias *Mat) *Mat {
	if bias.Rows != 1 || bias.Cols != a.Cols {
		panic(fmt.Sprintf("tensor: AddBias wants 1x%d bias, got %dx%d", a.Cols, bias.Rows, bias.Cols))
	}
	out := NewMat(a.Rows, a.Cols)
	for r := 0; r < a.Rows; r++ {
		arow := a.Row(r)
		orow := out.Row(r)
		for c, v := range arow {
			orow[c] = v + bias.Data[c]
		}
	}
	g.AddBackward(func() {
		for r := 0; r < a.Rows; r++ {
			agrad := a.GradRow(r)
			ograd := out.GradRow(r)
			for c, gv := range ograd {
				agrad[c] += gv
				bias.Grad[c] += gv
			}
		}
	})
	return out
}

// Hadamard computes the elementwise product of two equally shaped matrices.
func (g *Graph) Hadamard(a, b *Mat) *Mat {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("tensor: Hadamard shape mismatch %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, a.Cols)
	for i := range out.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			a.Grad[i] += gv * b.Data[i]
			b.Grad[i] += gv * a.Data[i]
		}
	})
	return out
}

// Scale multiplies every element by a constant.
func (g *Graph) Scale(a *Mat, s float64) *Mat {
	out := NewMat(a.Rows, a.Cols)
	for i := range out.Data {
		out.Data[i] = a.Data[i] * s
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			a.Grad[i] += gv * s
		}
	})
	return out
}

// OneMinus computes 1 - a elementwise, used by gate arithmetic.
func (g *Graph) OneMinus(a *Mat) *Mat {
	out := NewMat(a.Rows, a.Cols)
	for i := range out.Data {
		out.Data[i] = 1 - a.Data[i]
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			a.Grad[i] -= gv
		}
	})
	return out
}

// Relu applies max(0, x) elementwise.
func (g *Graph) Relu(a *Mat) *Mat {
	out := NewMat(a.Rows, a.Cols)
	for i, v := range a.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			if a.Data[i] > 0 {
				a.Grad[i] += gv
			}
		}
	})
	return out
}

// Sigmoid applies the logistic function elementwise.
func (g *Graph) Sigmoid(a *Mat) *Mat {
	out := NewMat(a.Rows, a.Cols)
	for i, v := range a.Data {
		out.Data[i] = 1 / (1 + math.Exp(-v))
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			s := out.Data[i]
			a.Grad[i] += gv * s * (1 - s)
		}
	})
	return out
}

// Tanh applies the hyperbolic tangent elementwise.
func (g *Graph) Tanh(a *Mat) *Mat {
	out := NewMat(a.Rows, a.Cols)
	for i, v := range a.Data {
		out.Data[i] = math.Tanh(v)
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			t := out.Data[i]
			a.Grad[i] += gv * (1 - t*t)
		}
	})
	return out
}

// Exp applies e^x elementwise.
func (g *Graph) Exp(a *Mat) *Mat {
	out := NewMat(a.Rows, a.Cols)
	for i, v := range a.Data {
		out.Data[i] = math.Exp(v)
	}
	g.AddBackward(func() {
		for i, gv := range out.Grad {
			a.Grad[i] += gv * out.Data[i]
		}
	})
	return out
}

// ConcatRows stacks matrices with equal column counts on top of each other.
func (g *Graph) ConcatRows(mats ...*Mat) *Mat {
	if len(mats) == 0 {
		panic("tensor: ConcatRows requires at least one matrix")
	}
	cols := mats[0].Cols
	rows := 0
	for _, m := range mats {
		if m.Cols != cols {
			panic(fmt.Sprintf("tensor: ConcatRows column mismatch %d != %d", m.Cols, cols))
		}
		rows += m.Rows
	}
	out := NewMat(rows, cols)
	offset := 0
	for _, m := range mats {
		copy(out.Data[offset:offset+len(m.Data)], m.Data)
		offset += len(m.Data)
	}
	g.AddBackward(func() {
		offset := 0
		for _, m := range mats {
			for i := range m.Grad {
				m.Grad[i] += out.Grad[offset+i]
			}
			offset += len(m.Data)
		}
	})
	return out
}

// ConcatCols joins matrices with equal row counts side by side.
func (g *Graph) ConcatCols(mats ...*Mat) *Mat {
	if len(mats) == 0 {
		panic("tensor: ConcatCols requires at least one matrix")
	}
	rows := mats[0].Rows
	cols := 0
	for _, m := range mats {
		if m.Rows != rows {
			panic(fmt.Sprintf("tensor: ConcatCols row mismatch %d != %d", m.Rows, rows))
		}
		cols += m.Cols
	}
	out := NewMat(rows, cols)
	for r := 0; r < rows; r++ {
		offset := 0
		orow := out.Row(r)
		for _, m := range mats {
			copy(orow[offset:offset+m.Cols], m.Row(r))
			offset += m.Cols
		}
	}
	g.AddBackward(func() {
		for r := 0; r < rows; r++ {
			offset := 0
			ograd := out.GradRow(r)
			for _, m := range mats {
				mgrad := m.GradRow(r)
				for c := 0; c < m.Cols; c++ {
					mgrad[c] += ograd[offset+c]
				}
				offset += m.Cols
			}
		}
	})
	return out
}

// GatherRows selects the given rows of a, in order, into a new matrix.
func (g *Graph) GatherRows(a *Mat, idx []int) *Mat {
	if len(idx) == 0 {
		panic("tensor: GatherRows requires at least one index")
	}
	out := NewMat(len(idx), a.Cols)
	for i, r := range idx {
		if r < 0 || r >= a.Rows {
			panic(fmt.Sprintf("tensor: GatherRows index %d out of range [0,%d)", r, a.Rows))
		}
		copy(out.Row(i), a.Row(r))
	}
	g.AddBackward(func() {
		for i, r := range idx {
			agrad := a.GradRow(r)
			ograd := out.GradRow(i)
			for c, gv := range ograd {
				agrad[c] += gv
			}
		}
	})
	return out
}
