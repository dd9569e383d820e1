package rep

import (
	"math/rand"
	"testing"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

func testRep(rows, cols int) Representation {
	m := tensor.NewMat(rows, cols)
	for i := range m.Data {
		m.Data[i] = float64(i%7) - 3
	}
	return Representation{Loc: m, Scale: UnitScale(rows, cols)}
}

func TestNoOpDecoderRoundTrip(t *testing.T) {
	r := testRep(3, 8)
	g := tensor.NewGraph(true)
	ctx, err := NoOpDecoder{}.DecodeContext(g, r, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	tgt, err := NoOpDecoder{}.DecodeTarget(g, r, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeTarget: %v", err)
	}
	if ctx != r.Loc || tgt != r.Loc {
		t.Error("no-op decoder must return the representation mean itself")
	}
	if got := (NoOpDecoder{}).Params(); len(got) != 0 {
		t.Errorf("no-op decoder has %d params, want none", len(got))
	}
}

func TestProjectionHeadShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	head := NewProjectionHead(8, 4, rng)
	g := tensor.NewGraph(true)
	r := testRep(5, 8)
	ctx, err := head.DecodeContext(g, r, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	tgt, err := head.DecodeTarget(g, r, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeTarget: %v", err)
	}
	if ctx.Rows != 5 || ctx.Cols != 4 || tgt.Rows != 5 || tgt.Cols != 4 {
		t.Errorf("projections are %dx%d and %dx%d, want 5x4", ctx.Rows, ctx.Cols, tgt.Rows, tgt.Cols)
	}
	// Shared head: same input gives the same projection on both sides.
	for i := range ctx.Data {
		if ctx.Data[i] != tgt.Data[i] {
			t.Fatal("context and target projections differ for a shared head")
		}
	}
}

func TestTargetProjectionDimMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(32))
	if _, err := NewTargetProjection(8, 4, rng); err == nil {
		t.Error("expected error when projection dim differs from representation dim")
	}
	if _, err := NewTargetProjection(8, 8, rng); err != nil {
		t.Errorf("matching dims rejected: %v", err)
	}
}

func TestTargetProjectionContextPassthrough(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	head, err := NewTargetProjection(8, 8, rng)
	if err != nil {
		t.Fatalf("NewTargetProjection: %v", err)
	}
	g := tensor.NewGraph(true)
	r := testRep(2, 8)
	ctx, err := head.DecodeContext(g, r, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	if ctx != r.Loc {
		t.Error("context must pass through unprojected")
	}
}

func TestMomentumProjectionHeadEMA(t *testing.T) {
	const m = 0.8
	rng := rand.New(rand.NewSource(34))
	head, err := NewMomentumProjectionHead(8, 4, m, rng)
	if err != nil {
		t.Fatalf("NewMomentumProjectionHead: %v", err)
	}
	for _, p := range head.query.Params() {
		for i := range p.Data {
			p.Data[i] += 1
		}
	}
	keyBefore := make([][]float64, len(head.key.Params()))
	for i, p := range head.key.Params() {
		keyBefore[i] = append([]float64(nil), p.Data...)
	}

	g := tensor.NewGraph(true)
	if _, err := head.DecodeTarget(g, testRep(2, 8), TrajInfo{}, nil); err != nil {
		t.Fatalf("DecodeTarget: %v", err)
	}
	qp := head.query.Params()
	for i, p := range head.key.Params() {
		for j, got := range p.Data {
			want := m*keyBefore[i][j] + (1-m)*qp[i].Data[j]
			if diff := got - want; diff > 1e-12 || diff < -1e-12 {
				t.Fatalf("key param %d[%d] = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestMomentumProjectionHeadParamsExcludeKey(t *testing.T) {
	rng := rand.New(rand.NewSource(35))
	head, err := NewMomentumProjectionHead(8, 4, 0.99, rng)
	if err != nil {
		t.Fatalf("NewMomentumProjectionHead: %v", err)
	}
	keySet := map[*tensor.Mat]bool{}
	for _, p := range head.key.Params() {
		keySet[p] = true
	}
	for _, p := range head.Params() {
		if keySet[p] {
			t.Fatal("Params leaked a key-head parameter")
		}
	}
}

func TestBYOLProjectionHeadPredicts(t *testing.T) {
	rng := rand.New(rand.NewSource(36))
	head, err := NewBYOLProjectionHead(8, 4, 0.99, rng)
	if err != nil {
		t.Fatalf("NewBYOLProjectionHead: %v", err)
	}
	g := tensor.NewGraph(true)
	r := testRep(3, 8)
	ctx, err := head.DecodeContext(g, r, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	if ctx.Rows != 3 || ctx.Cols != 4 {
		t.Errorf("prediction is %dx%d, want 3x4", ctx.Rows, ctx.Cols)
	}
	// Predictor params train alongside the query head.
	if len(head.Params()) != len(head.MomentumProjectionHead.Params())+len(head.predictor.Params()) {
		t.Error("predictor parameters missing from Params")
	}
}

func TestPixelDecoder(t *testing.T) {
	rng := rand.New(rand.NewSource(37))
	d, err := NewPixelDecoder(8, 2, 4, 36, rng)
	if err != nil {
		t.Fatalf("NewPixelDecoder: %v", err)
	}
	g := tensor.NewGraph(true)
	r := testRep(3, 8)
	actions := tensor.NewMat(3, 2)

	out, err := d.DecodeContext(g, r, TrajInfo{}, actions)
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	if out.Rows != 3 || out.Cols != 36 {
		t.Errorf("predicted pixels are %dx%d, want 3x36", out.Rows, out.Cols)
	}

	if _, err := d.DecodeContext(g, r, TrajInfo{}, nil); err == nil {
		t.Error("expected error decoding without an action")
	}

	// Targets pass through untouched.
	pix := testRep(3, 36)
	tgt, err := d.DecodeTarget(g, pix, TrajInfo{}, nil)
	if err != nil {
		t.Fatalf("DecodeTarget: %v", err)
	}
	if tgt != pix.Loc {
		t.Error("target pixels must pass through unchanged")
	}
}

func TestActionPredictionDecoder(t *testing.T) {
	rng := rand.New(rand.NewSource(38))
	d, err := NewActionPredictionDecoder(8, 2, rng)
	if err != nil {
		t.Fatalf("NewActionPredictionDecoder: %v", err)
	}
	g := tensor.NewGraph(true)
	r := testRep(3, 8)
	actions := tensor.NewMat(3, 2)
	for i := range actions.Data {
		actions.Data[i] = float64(i)
	}

	out, err := d.DecodeContext(g, r, TrajInfo{}, actions)
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	if out.Rows != 3 || out.Cols != 2 {
		t.Errorf("predicted actions are %dx%d, want 3x2", out.Rows, out.Cols)
	}

	tgt, err := d.DecodeTarget(g, r, TrajInfo{}, actions)
	if err != nil {
		t.Fatalf("DecodeTarget: %v", err)
	}
	if tgt == actions {
		t.Error("target must be a copy, not the extra-context matrix itself")
	}
	for i := range actions.Data {
		if tgt.Data[i] != actions.Data[i] {
			t.Fatal("target values differ from the true actions")
		}
	}

	if _, err := d.DecodeContext(g, r, TrajInfo{}, nil); err == nil {
		t.Error("expected error decoding context without actions")
	}
	if _, err := d.DecodeTarget(g, r, TrajInfo{}, nil); err == nil {
		t.Error("expected error decoding target without actions")
	}
	short := tensor.NewMat(2, 2)
	if _, err := d.DecodeTarget(g, r, TrajInfo{}, short); err == nil {
		t.Error("expected error for row-count mismatch")
	}
}

func TestActionConditionedDecoderRequiresExtra(t *testing.T) {
	rng := rand.New(rand.NewSource(39))
	d, err := NewActionConditionedDecoder(8, 4, 2, 4, rng)
	if err != nil {
		t.Fatalf("NewActionConditionedDecoder: %v", err)
	}
	g := tensor.NewGraph(true)
	r := testRep(2, 8)
	if _, err := d.DecodeContext(g, r, TrajInfo{}, nil); err == nil {
		t.Error("expected error conditioning on missing extra context")
	}
	out, err := d.DecodeContext(g, r, TrajInfo{}, tensor.NewMat(2, 2))
	if err != nil {
		t.Fatalf("DecodeContext: %v", err)
	}
	if out.Rows != 2 || out.Cols != 4 {
		t.Errorf("projection is %dx%d, want 2x4", out.Rows, out.Cols)
	}
}
