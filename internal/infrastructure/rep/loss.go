package rep

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// LossCalculator reduces a decoded batch to a single scalar loss (mean over
// the batch, so learning rates stay batch-size-invariant) and writes the
// loss gradients into the Grad fields of its inputs. The caller runs the
// graph's backward pass afterwards.
type LossCalculator interface {
	Compute(g *tensor.Graph, decodedContext, decodedTarget *tensor.Mat, encodedContext Representation) (float64, error)
}

const normEpsilon = 1e-12

// normalizeRows returns L2-normalized copies of the rows of m along with the
// row norms used, for backpropagating through the normalization.
func normalizeRows(m *tensor.Mat) (*tensor.Mat, []float64) {
	out := tensor.NewMat(m.Rows, m.Cols)
	norms := make([]float64, m.Rows)
	for r := 0; r < m.Rows; r++ {
		n := m.RowNorm(r)
		if n < normEpsilon {
			n = normEpsilon
		}
		norms[r] = n
		src := m.Row(r)
		dst := out.Row(r)
		for c, v := range src {
			dst[c] = v / n
		}
	}
	return out, norms
}

// addNormalizedGrad accumulates d(loss)/d(raw) into raw.Grad given the
// gradient with respect to the normalized rows.
func addNormalizedGrad(raw, normalized *tensor.Mat, norms []float64, normGrad *tensor.Mat) {
	for r := 0; r < raw.Rows; r++ {
		nrow := normalized.Row(r)
		grow := normGrad.Row(r)
		var dot float64
		for c := range nrow {
			dot += nrow[c] * grow[c]
		}
		dst := raw.GradRow(r)
		for c := range nrow {
			dst[c] += (grow[c] - dot*nrow[c]) / norms[r]
		}
	}
}

// softmaxRow writes a numerically stable softmax of src into dst.
func softmaxRow(dst, src []float64) {
	maxv := math.Inf(-1)
	for _, v := range src {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range src {
		e := math.Exp(v - maxv)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// SymmetricContrastiveLoss treats every (context_i, target_i) pair as a
// positive and contrasts in both directions: each context against all
// targets and each target against all contexts. The two cross-entropies are
// averaged.
type SymmetricContrastiveLoss struct {
	Temperature float64
}

// NewSymmetricContrastiveLoss validates the temperature.
func NewSymmetricContrastiveLoss(temperature float64) (*SymmetricContrastiveLoss, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", temperature)
	}
	return &SymmetricContrastiveLoss{Temperature: temperature}, nil
}

// Compute implements LossCalculator.
func (l *SymmetricContrastiveLoss) Compute(_ *tensor.Graph, decodedContext, decodedTarget *tensor.Mat, _ Representation) (float64, error) {
	if !decodedContext.SameShape(decodedTarget) {
		return 0, fmt.Errorf("symmetric contrastive loss needs equally shaped batches, got %dx%d and %dx%d",
			decodedContext.Rows, decodedContext.Cols, decodedTarget.Rows, decodedTarget.Cols)
	}
	b := decodedContext.Rows
	ctxN, ctxNorms := normalizeRows(decodedContext)
	tgtN, tgtNorms := normalizeRows(decodedTarget)

	// logits[i][j] = <ctx_i, tgt_j> / temperature
	logits := tensor.NewMat(b, b)
	for i := 0; i < b; i++ {
		crow := ctxN.Row(i)
		lrow := logits.Row(i)
		for j := 0; j < b; j++ {
			trow := tgtN.Row(j)
			var dot float64
			for k := range crow {
				dot += crow[k] * trow[k]
			}
			lrow[j] = dot / l.Temperature
		}
	}

	rowP := tensor.NewMat(b, b)
	colP := tensor.NewMat(b, b)
	var loss float64
	col := make([]float64, b)
	colOut := make([]float64, b)
	for i := 0; i < b; i++ {
		softmaxRow(rowP.Row(i), logits.Row(i))
		loss -= math.Log(math.Max(rowP.At(i, i), normEpsilon))
	}
	for j := 0; j < b; j++ {
		for i := 0; i < b; i++ {
			col[i] = logits.At(i, j)
		}
		softmaxRow(colOut, col)
		for i := 0; i < b; i++ {
			colP.Set(i, j, colOut[i])
		}
		loss -= math.Log(math.Max(colP.At(j, j), normEpsilon))
	}
	loss /= float64(2 * b)

	// dLoss/dlogits, both directions averaged.
	logitGrad := tensor.NewMat(b, b)
	inv := 1 / float64(2*b)
	for i := 0; i < b; i++ {
		for j := 0; j < b; j++ {
			g := (rowP.At(i, j) + colP.At(i, j)) * inv
			if i == j {
				g -= 2 * inv
			}
			logitGrad.Set(i, j, g)
		}
	}

	ctxGrad := tensor.NewMat(b, decodedContext.Cols)
	tgtGrad := tensor.NewMat(b, decodedTarget.Cols)
	for i := 0; i < b; i++ {
		for j := 0; j < b; j++ {
			gv := logitGrad.At(i, j) / l.Temperature
			if gv == 0 {
				continue
			}
			trow := tgtN.Row(j)
			crow := ctxN.Row(i)
			cg := ctxGrad.Row(i)
			tg := tgtGrad.Row(j)
			for k := range crow {
				cg[k] += gv * trow[k]
				tg[k] += gv * crow[k]
			}
		}
	}
	addNormalizedGrad(decodedContext, ctxN, ctxNorms, ctxGrad)
	addNormalizedGrad(decodedTarget, tgtN, tgtNorms, tgtGrad)
	return loss, nil
}

// AsymmetricContrastiveLoss contrasts each context only against the target
// batch (which may include queue negatives), never the other way around.
// Appropriate when the target distribution comes from a momentum path.
type AsymmetricContrastiveLoss struct {
	Temperature float64
}

// NewAsymmetricContrastiveLoss validates the temperature.
func NewAsymmetricContrastiveLoss(temperature float64) (*AsymmetricContrastiveLoss, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", temperature)
	}
	return &AsymmetricContrastiveLoss{Temperature: temperature}, nil
}

// Compute implements LossCalculator. decodedTarget may have more rows than
// decodedContext; the positive for context i is target row i.
func (l *AsymmetricContrastiveLoss) Compute(_ *tensor.Graph, decodedContext, decodedTarget *tensor.Mat, _ Representation) (float64, error) {
	if decodedTarget.Cols != decodedContext.Cols {
		return 0, fmt.Errorf("context dim %d does not match target dim %d", decodedContext.Cols, decodedTarget.Cols)
	}
	if decodedTarget.Rows < decodedContext.Rows {
		return 0, fmt.Errorf("target batch has %d rows, need at least the %d context rows", decodedTarget.Rows, decodedContext.Rows)
	}
	b := decodedContext.Rows
	m := decodedTarget.Rows
	ctxN, ctxNorms := normalizeRows(decodedContext)
	tgtN, tgtNorms := normalizeRows(decodedTarget)

	logits := make([]float64, m)
	probs := make([]float64, m)
	ctxGrad := tensor.NewMat(b, decodedContext.Cols)
	tgtGrad := tensor.NewMat(m, decodedTarget.Cols)
	var loss float64
	for i := 0; i < b; i++ {
		crow := ctxN.Row(i)
		for j := 0; j < m; j++ {
			trow := tgtN.Row(j)
			var dot float64
			for k := range crow {
				dot += crow[k] * trow[k]
			}
			logits[j] = dot / l.Temperature
		}
		softmaxRow(probs, logits)
		loss -= math.Log(math.Max(probs[i], normEpsilon))

		cg := ctxGrad.Row(i)
		for j := 0; j < m; j++ {
			gv := probs[j]
			if j == i {
				gv -= 1
			}
			gv /= float64(b) * l.Temperature
			if gv == 0 {
				continue
			}
			trow := tgtN.Row(j)
			tg := tgtGrad.Row(j)
			for k := range crow {
				cg[k] += gv * trow[k]
				tg[k] += gv * crow[k]
			}
		}
	}
	loss /= float64(b)
	addNormalizedGrad(decodedContext, ctxN, ctxNorms, ctxGrad)
	addNormalizedGrad(decodedTarget, tgtN, tgtNorms, tgtGrad)
	return loss, nil
}

// MSELoss is the plain mean squared error between decoded context and
// target. With a momentum decoder the target side carries no gradient, so
// the BYOL stop-gradient falls out structurally.
type MSELoss struct{}

// Compute implements LossCalculator.
func (MSELoss) Compute(_ *tensor.Graph, decodedContext, decodedTarget *tensor.Mat, _ Representation) (float64, error) {
	if !decodedContext.SameShape(decodedTarget) {
		return 0, fmt.Errorf("mse loss needs equally shaped batches, got %dx%d and %dx%d",
			decodedContext.Rows, decodedContext.Cols, decodedTarget.Rows, decodedTarget.Cols)
	}
	n := float64(len(decodedContext.Data))
	var loss float64
	for i, cv := range decodedContext.Data {
		diff := cv - decodedTarget.Data[i]
		loss += diff * diff
		decodedContext.Grad[i] += 2 * diff / n
		decodedTarget.Grad[i] -= 2 * diff / n
	}
	return loss / n, nil
}

// CEBLoss is the conditional entropy bottleneck: a contrastive
// reconstruction term plus a beta-weighted rate term computed against the
// raw encoded (pre-decoder) representation. The latent is sampled from the
// encoder distribution by reparameterization.
type CEBLoss struct {
	Beta float64
	rng  *rand.Rand
}

// NewCEBLoss validates the bottleneck coefficient.
func NewCEBLoss(beta float64, rng *rand.Rand) (*CEBLoss, error) {
	if beta < 0 {
		return nil, fmt.Errorf("ceb beta must be non-negative, got %v", beta)
	}
	return &CEBLoss{Beta: beta, rng: rng}, nil
}

// Compute implements LossCalculator.
func (l *CEBLoss) Compute(_ *tensor.Graph, _ *tensor.Mat, decodedTarget *tensor.Mat, encodedContext Representation) (float64, error) {
	mu, sigma := encodedContext.Loc, encodedContext.Scale
	if mu == nil || sigma == nil {
		return 0, fmt.Errorf("ceb loss requires an encoded context distribution")
	}
	if !mu.SameShape(decodedTarget) {
		return 0, fmt.Errorf("ceb loss needs matching dims, got %dx%d context and %dx%d target",
			mu.Rows, mu.Cols, decodedTarget.Rows, decodedTarget.Cols)
	}
	b, d := mu.Rows, mu.Cols

	// z = mu + sigma*eps, one reparameterized sample per element.
	eps := make([]float64, b*d)
	z := tensor.NewMat(b, d)
	for i := range z.Data {
		eps[i] = l.rng.NormFloat64()
		z.Data[i] = mu.Data[i] + sigma.Data[i]*eps[i]
	}

	// Rate term: log e(z|x) - log b(z|y) with unit-variance backward
	// distribution centered on the decoded target. The 2*pi constants
	// cancel exactly.
	var rate float64
	for i := range z.Data {
		s := math.Max(sigma.Data[i], normEpsilon)
		diff := z.Data[i] - decodedTarget.Data[i]
		rate += -0.5*eps[i]*eps[i] - math.Log(s) + 0.5*diff*diff
	}
	rate /= float64(b)

	// CatGen term: InfoNCE over backward log-densities,
	// logits[i][j] = -0.5*||z_i - t_j||^2.
	logits := tensor.NewMat(b, b)
	for i := 0; i < b; i++ {
		zrow := z.Row(i)
		lrow := logits.Row(i)
		for j := 0; j < b; j++ {
			trow := decodedTarget.Row(j)
			var sq float64
			for k := range zrow {
				diff := zrow[k] - trow[k]
				sq += diff * diff
			}
			lrow[j] = -0.5 * sq
		}
	}
	probs := tensor.NewMat(b, b)
	var catgen float64
	for i := 0; i < b; i++ {
		softmaxRow(probs.Row(i), logits.Row(i))
		catgen -= math.Log(math.Max(probs.At(i, i), normEpsilon))
	}
	catgen /= float64(b)

	loss := l.Beta*rate + catgen

	// Gradients. zGrad collects d(loss)/dz, then splits into mu and sigma
	// through the reparameterization.
	zGrad := tensor.NewMat(b, d)
	scale := l.Beta / float64(b)
	for i := range z.Data {
		s := math.Max(sigma.Data[i], normEpsilon)
		diff := z.Data[i] - decodedTarget.Data[i]
		sigma.Grad[i] -= scale / s
		zGrad.Data[i] += scale * diff
		decodedTarget.Grad[i] -= scale * diff
	}
	inv := 1 / float64(b)
	for i := 0; i < b; i++ {
		zrow := z.Row(i)
		zg := zGrad.Row(i)
		for j := 0; j < b; j++ {
			gv := probs.At(i, j) * inv
			if i == j {
				gv -= inv
			}
			if gv == 0 {
				continue
			}
			trow := decodedTarget.Row(j)
			tg := decodedTarget.GradRow(j)
			for k := range zrow {
				diff := zrow[k] - trow[k]
				zg[k] -= gv * diff
				tg[k] += gv * diff
			}
		}
	}
	for i := range z.Data {
		mu.Grad[i] += zGrad.Data[i]
		sigma.Grad[i] += zGrad.Data[i] * eps[i]
	}
	return loss, nil
}
