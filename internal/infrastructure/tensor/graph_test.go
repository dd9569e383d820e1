package tensor

import (
	"math"
	"testing"
)

func TestMatMulForwardBackward(t *testing.T) {
	g := NewGraph(true)
	a := FromRows([][]float64{{1, 2}, {3, 4}})
	b := FromRows([][]float64{{5, 6}, {7, 8}})

	out := g.MatMul(a, b)

	want := [][]float64{{19, 22}, {43, 50}}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if out.At(r, c) != want[r][c] {
				t.Errorf("out[%d][%d] = %v, want %v", r, c, out.At(r, c), want[r][c])
			}
		}
	}

	// dL/dout = all ones: dL/da = out_grad * b^T, dL/db = a^T * out_grad.
	for i := range out.Grad {
		out.Grad[i] = 1
	}
	g.Backward()

	wantA := [][]float64{{11, 15}, {11, 15}}
	wantB := [][]float64{{4, 4}, {6, 6}}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if got := a.Grad[r*2+c]; got != wantA[r][c] {
				t.Errorf("a.Grad[%d][%d] = %v, want %v", r, c, got, wantA[r][c])
			}
			if got := b.Grad[r*2+c]; got != wantB[r][c] {
				t.Errorf("b.Grad[%d][%d] = %v, want %v", r, c, got, wantB[r][c])
			}
		}
	}
}

func TestMatMulTMatchesExplicitTranspose(t *testing.T) {
	g := NewGraph(true)
	a := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	b := FromRows([][]float64{{7, 8, 9}, {10, 11, 12}})

	out := g.MatMulT(a, b)

	want := [][]float64{{50, 68}, {122, 167}}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if out.At(r, c) != want[r][c] {
				t.Errorf("out[%d][%d] = %v, want %v", r, c, out.At(r, c), want[r][c])
			}
		}
	}

	out.Grad[0] = 1 // only dL/dout[0][0]
	g.Backward()
	// dL/da[0] = b[0], dL/db[0] = a[0].
	for k := 0; k < 3; k++ {
		if a.Grad[k] != b.Data[k] {
			t.Errorf("a.Grad[0][%d] = %v, want %v", k, a.Grad[k], b.Data[k])
		}
		if b.Grad[k] != a.Data[k] {
			t.Errorf("b.Grad[0][%d] = %v, want %v", k, b.Grad[k], a.Data[k])
		}
	}
}

func TestAddBiasBroadcast(t *testing.T) {
	g := NewGraph(true)
	a := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	bias := FromRows([][]float64{{10, 20}})

	out := g.AddBias(a, bias)
	if out.At(2, 1) != 26 {
		t.Fatalf("out[2][1] = %v, want 26", out.At(2, 1))
	}

	for i := range out.Grad {
		out.Grad[i] = 1
	}
	g.Backward()
	// Bias gradient accumulates over the batch dimension.
	if bias.Grad[0] != 3 || bias.Grad[1] != 3 {
		t.Errorf("bias.Grad = %v, want [3 3]", bias.Grad)
	}
}

func TestActivationGradients(t *testing.T) {
	tests := []struct {
		name     string
		apply    func(g *Graph, a *Mat) *Mat
		in       float64
		wantOut  float64
		wantGrad float64
	}{
		{"relu positive", func(g *Graph, a *Mat) *Mat { return g.Relu(a) }, 2, 2, 1},
		{"relu negative", func(g *Graph, a *Mat) *Mat { return g.Relu(a) }, -2, 0, 0},
		{"sigmoid zero", func(g *Graph, a *Mat) *Mat { return g.Sigmoid(a) }, 0, 0.5, 0.25},
		{"tanh zero", func(g *Graph, a *Mat) *Mat { return g.Tanh(a) }, 0, 0, 1},
		{"exp zero", func(g *Graph, a *Mat) *Mat { return g.Exp(a) }, 0, 1, 1},
		{"one minus", func(g *Graph, a *Mat) *Mat { return g.OneMinus(a) }, 0.3, 0.7, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph(true)
			a := NewMat(1, 1)
			a.Data[0] = tt.in
			out := tt.apply(g, a)
			if math.Abs(out.Data[0]-tt.wantOut) > 1e-12 {
				t.Errorf("out = %v, want %v", out.Data[0], tt.wantOut)
			}
			out.Grad[0] = 1
			g.Backward()
			if math.Abs(a.Grad[0]-tt.wantGrad) > 1e-12 {
				t.Errorf("grad = %v, want %v", a.Grad[0], tt.wantGrad)
			}
		})
	}
}

func TestConcatRowsRoutesGradients(t *testing.T) {
	g := NewGraph(true)
	a := FromRows([][]float64{{1, 2}})
	b := FromRows([][]float64{{3, 4}, {5, 6}})

	out := g.ConcatRows(a, b)
	if out.Rows != 3 || out.At(2, 1) != 6 {
		t.Fatalf("unexpected concat result %dx%d", out.Rows, out.Cols)
	}

	out.Grad[0] = 10 // a[0][0]
	out.Grad[5] = 20 // b[1][1]
	g.Backward()
	if a.Grad[0] != 10 {
		t.Errorf("a.Grad[0] = %v, want 10", a.Grad[0])
	}
	if b.Grad[3] != 20 {
		t.Errorf("b.Grad[1][1] = %v, want 20", b.Grad[3])
	}
}

func TestGatherRowsScatterAddsGradients(t *testing.T) {
	g := NewGraph(true)
	a := FromRows([][]float64{{1, 1}, {2, 2}, {3, 3}})

	out := g.GatherRows(a, []int{2, 0, 2})
	if out.At(0, 0) != 3 || out.At(1, 0) != 1 || out.At(2, 0) != 3 {
		t.Fatalf("gather picked wrong rows: %v", out.Data)
	}

	for i := range out.Grad {
		out.Grad[i] = 1
	}
	g.Backward()
	// Row 2 was gathered twice, so its gradient doubles.
	if a.Grad[4] != 2 || a.Grad[0] != 1 || a.Grad[2] != 0 {
		t.Errorf("scatter-add gradients = %v", a.Grad)
	}
}

func TestNoGradGraphRecordsNothing(t *testing.T) {
	g := NewGraph(false)
	a := FromRows([][]float64{{1, 2}})
	b := FromRows([][]float64{{3, 4}})

	out := g.Add(a, b)
	for i := range out.Grad {
		out.Grad[i] = 1
	}
	g.Backward()
	if a.Grad[0] != 0 || b.Grad[0] != 0 {
		t.Errorf("no-grad graph propagated gradients: %v %v", a.Grad, b.Grad)
	}
}

func TestChainedBackward(t *testing.T) {
	// f(x) = sigmoid(2x) at x=0: df/dx = 2 * 0.25 = 0.5.
	g := NewGraph(true)
	x := NewMat(1, 1)
	out := g.Sigmoid(g.Scale(x, 2))
	out.Grad[0] = 1
	g.Backward()
	if math.Abs(x.Grad[0]-0.5) > 1e-12 {
		t.Errorf("chained grad = %v, want 0.5", x.Grad[0])
	}
}
