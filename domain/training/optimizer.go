package training

import "math"

// adamW is a from-scratch AdamW optimizer over a flat parameter vector,
// per §4.5's fixed hyperparameters (lr=1e-5, weight decay=0.01). No
// autodiff or optimizer library is available in this stack, so updates
// are computed by hand from Head.gradient's analytic gradients.
type adamW struct {
	lr, beta1, beta2, eps, weightDecay float64
	m, v                               []float64
	t                                  int
}

func newAdamW(n int, lr, weightDecay float64) *adamW {
	return &adamW{
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make([]float64, n),
		v:           make([]float64, n),
	}
}

// Step applies one AdamW update to params in place given grad, the
// gradient of the loss averaged over the current mini-batch.
func (o *adamW) Step(params, grad []float64) {
	o.t++
	biasCorrect1 := 1 - math.Pow(o.beta1, float64(o.t))
	biasCorrect2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, g := range grad {
		o.m[i] = o.beta1*o.m[i] + (1-o.beta1)*g
		o.v[i] = o.beta2*o.v[i] + (1-o.beta2)*g*g

		mHat := o.m[i] / biasCorrect1
		vHat := o.v[i] / biasCorrect2

		// Decoupled weight decay, applied directly to the parameter
		// rather than folded into the gradient.
		params[i] -= o.lr * o.weightDecay * params[i]
		params[i] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
	}
}
