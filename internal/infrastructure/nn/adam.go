package nn

import (
	"math"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// Adam implements the Adam optimizer over a fixed parameter list.
type Adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	decay   float64

	params []*tensor.Mat
	m      [][]float64
	v      [][]float64
	t      int
}

// NewAdam creates an optimizer for the given parameters.
func NewAdam(params []*tensor.Mat, lr, beta1, beta2, epsilon, weightDecay float64) *Adam {
	a := &Adam{
		lr:      lr,
		beta1:   beta1,
		beta2:   beta2,
		epsilon: epsilon,
		decay:   weightDecay,
		params:  params,
		m:       make([][]float64, len(params)),
		v:       make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR replaces the learning rate; called by the scheduler between epochs.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// ZeroGrad clears the gradients of every managed parameter.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// Step applies one Adam update using the accumulated gradients.
func (a *Adam) Step() {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range a.params {
		m := a.m[i]
		v := a.v[i]
		for j, gv := range p.Grad {
			if a.decay != 0 {
				gv += a.decay * p.Data[j]
			}
			m[j] = a.beta1*m[j] + (1-a.beta1)*gv
			v[j] = a.beta2*v[j] + (1-a.beta2)*gv*gv
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			p.Data[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
}
