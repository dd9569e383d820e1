package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// Conv2D is a strided 2-D convolution over batches of flattened CHW frames.
// Each input row of the batch matrix is one frame laid out channel-major.
type Conv2D struct {
	InC    int
	OutC   int
	Kernel int
	Stride int
	W      *tensor.Mat // OutC x InC*Kernel*Kernel
	B      *tensor.Mat // 1 x OutC
}

// NewConv2D creates a convolution layer with He-scaled initialization.
func NewConv2D(inC, outC, kernel, stride int, rng *rand.Rand) *Conv2D {
	fanIn := inC * kernel * kernel
	scale := math.Sqrt(2.0 / float64(fanIn))
	return &Conv2D{
		InC:    inC,
		OutC:   outC,
		Kernel: kernel,
		Stride: stride,
		W:      tensor.NewRandMat(outC, fanIn, rng, scale),
		B:      tensor.NewMat(1, outC),
	}
}

// OutSize returns the spatial output size for the given input size, or an
// error if the kernel does not fit.
func (c *Conv2D) OutSize(in int) (int, error) {
	if in < c.Kernel {
		return 0, fmt.Errorf("conv kernel %d does not fit input size %d", c.Kernel, in)
	}
	return (in-c.Kernel)/c.Stride + 1, nil
}

// Forward convolves each row of x, interpreted as an InC x h x w frame, and
// returns rows of OutC x outH x outW activations plus the output spatial size.
func (c *Conv2D) Forward(g *tensor.Graph, x *tensor.Mat, h, w int) (*tensor.Mat, int, int) {
	if x.Cols != c.InC*h*w {
		panic(fmt.Sprintf("nn: conv input has %d cols, want %d (%dx%dx%d)", x.Cols, c.InC*h*w, c.InC, h, w))
	}
	outH := (h-c.Kernel)/c.Stride + 1
	outW := (w-c.Kernel)/c.Stride + 1
	out := tensor.NewMat(x.Rows, c.OutC*outH*outW)

	for n := 0; n < x.Rows; n++ {
		in := x.Row(n)
		dst := out.Row(n)
		for oc := 0; oc < c.OutC; oc++ {
			wRow := c.W.Row(oc)
			bias := c.B.Data[oc]
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					acc := bias
					wi := 0
					for ic := 0; ic < c.InC; ic++ {
						base := ic * h * w
						for ky := 0; ky < c.Kernel; ky++ {
							row := base + (oy*c.Stride+ky)*w + ox*c.Stride
							for kx := 0; kx < c.Kernel; kx++ {
								acc += wRow[wi] * in[row+kx]
								wi++
							}
						}
					}
					dst[(oc*outH+oy)*outW+ox] = acc
				}
			}
		}
	}

	g.AddBackward(func() {
		for n := 0; n < x.Rows; n++ {
			in := x.Row(n)
			inGrad := x.GradRow(n)
			outGrad := out.GradRow(n)
			for oc := 0; oc < c.OutC; oc++ {
				wRow := c.W.Row(oc)
				wGrad := c.W.GradRow(oc)
				for oy := 0; oy < outH; oy++ {
					for ox := 0; ox < outW; ox++ {
						gv := outGrad[(oc*outH+oy)*outW+ox]
						if gv == 0 {
							continue
						}
						c.B.Grad[oc] += gv
						wi := 0
						for ic := 0; ic < c.InC; ic++ {
							base := ic * h * w
							for ky := 0; ky < c.Kernel; ky++ {
								row := base + (oy*c.Stride+ky)*w + ox*c.Stride
								for kx := 0; kx < c.Kernel; kx++ {
									wGrad[wi] += gv * in[row+kx]
									inGrad[row+kx] += gv * wRow[wi]
									wi++
								}
							}
						}
					}
				}
			}
		}
	})

	return out, outH, outW
}

// Params returns the trainable parameters.
func (c *Conv2D) Params() []*tensor.Mat {
	return []*tensor.Mat{c.W, c.B}
}
