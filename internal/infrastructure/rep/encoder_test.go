package rep

import (
	"math/rand"
	"testing"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

func TestCNNEncoderOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	enc, err := NewCNNEncoder(testShape, 8, testArch(), false, rng)
	if err != nil {
		t.Fatalf("NewCNNEncoder: %v", err)
	}
	g := tensor.NewGraph(true)
	r, err := enc.EncodeContext(g, testFrames(5), TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}
	if r.Loc.Rows != 5 || r.Loc.Cols != 8 {
		t.Errorf("representation is %dx%d, want 5x8", r.Loc.Rows, r.Loc.Cols)
	}
	if r.Scale.Rows != 5 || r.Scale.Cols != 8 {
		t.Errorf("scale is %dx%d, want 5x8", r.Scale.Rows, r.Scale.Cols)
	}
	for _, v := range r.Scale.Data {
		if v != 1 {
			t.Fatal("deterministic encoder must report unit scale")
		}
	}
}

func TestCNNEncoderLearnedScaleIsPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	enc, err := NewCNNEncoder(testShape, 8, testArch(), true, rng)
	if err != nil {
		t.Fatalf("NewCNNEncoder: %v", err)
	}
	g := tensor.NewGraph(true)
	r, err := enc.EncodeContext(g, testFrames(3), TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}
	for i, v := range r.Scale.Data {
		if v <= 0 {
			t.Fatalf("scale[%d] = %v, exp head must be strictly positive", i, v)
		}
	}
}

func TestCNNEncoderEvalModeReturnsMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	enc, err := NewCNNEncoder(testShape, 8, testArch(), true, rng)
	if err != nil {
		t.Fatalf("NewCNNEncoder: %v", err)
	}
	x := testFrames(3)

	g := tensor.NewGraph(true)
	train, err := enc.EncodeContext(g, x, TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}

	enc.SetTraining(false)
	g = tensor.NewGraph(false)
	eval, err := enc.EncodeContext(g, x, TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}
	// Zero scale collapses reparameterized samples onto the mean.
	for i, v := range eval.Scale.Data {
		if v != 0 {
			t.Fatalf("eval scale[%d] = %v, want 0", i, v)
		}
	}
	for i := range train.Loc.Data {
		if eval.Loc.Data[i] != train.Loc.Data[i] {
			t.Fatal("eval mode changed the mean itself")
		}
	}

	enc.SetTraining(true)
	g = tensor.NewGraph(true)
	back, err := enc.EncodeContext(g, x, TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}
	for i, v := range back.Scale.Data {
		if v <= 0 {
			t.Fatalf("train scale[%d] = %v, want strictly positive after re-enabling training", i, v)
		}
	}
}

func TestCNNEncoderKernelTooLarge(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	arch := domain.Architecture{
		Conv: []domain.ConvLayerSpec{{OutChannels: 4, Kernel: 7, Stride: 1}},
	}
	if _, err := NewCNNEncoder(testShape, 8, arch, false, rng); err == nil {
		t.Error("expected configuration error for kernel larger than the input plane")
	}
}

func TestCNNEncoderInvalidRepDim(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	if _, err := NewCNNEncoder(testShape, 0, testArch(), false, rng); err == nil {
		t.Error("expected error for non-positive representation dim")
	}
}

func TestDynamicsEncoderTargetIsRawPixels(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	inner, err := NewCNNEncoder(testShape, 8, testArch(), false, rng)
	if err != nil {
		t.Fatalf("NewCNNEncoder: %v", err)
	}
	enc := NewDynamicsEncoder(inner)
	g := tensor.NewGraph(true)
	x := testFrames(2)
	r, err := enc.EncodeTarget(g, x, TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeTarget: %v", err)
	}
	if r.Loc.Rows != 2 || r.Loc.Cols != testShape.Size() {
		t.Fatalf("target is %dx%d, want 2x%d raw pixels", r.Loc.Rows, r.Loc.Cols, testShape.Size())
	}
	for i := range x.Data {
		if r.Loc.Data[i] != x.Data[i] {
			t.Fatal("target pixels differ from the input frame")
		}
	}
	for _, v := range r.Scale.Data {
		if v != 0 {
			t.Fatal("ground-truth target must carry zero scale")
		}
	}

	// Contexts still go through the CNN.
	rc, err := enc.EncodeContext(g, x, TrajInfo{})
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}
	if rc.Loc.Cols != 8 {
		t.Errorf("context dim = %d, want 8", rc.Loc.Cols)
	}
}

func TestEncoderFactoryKinds(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	cfg := domain.DefaultLearnerConfig()
	cfg.Architecture = testArch()
	cfg.RepresentationDim = 8
	cfg.ActionDim = 2

	kinds := []domain.EncoderKind{
		domain.EncoderDeterministic,
		domain.EncoderStochastic,
		domain.EncoderMomentum,
		domain.EncoderRecurrent,
		domain.EncoderDynamics,
		domain.EncoderInverseDynamics,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			cfg.Encoder = kind
			enc, err := NewEncoder(cfg, testShape, rng)
			if err != nil {
				t.Fatalf("NewEncoder(%s): %v", kind, err)
			}
			if len(enc.Params()) == 0 {
				t.Error("encoder reports no trainable parameters")
			}
		})
	}

	cfg.Encoder = domain.EncoderKind("transformer")
	if _, err := NewEncoder(cfg, testShape, rng); err == nil {
		t.Error("expected error for unknown encoder kind")
	}
}
