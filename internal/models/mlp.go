package models

import (
	"math"
	"math/rand/v2"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// layer is a fully-connected layer.
type layer struct {
	Weights [][]float64 `json:"weights"` // [out][in]
	Biases  []float64   `json:"biases"`

	// Adam state and backprop caches, not serialized.
	mW, vW [][]float64
	mB, vB []float64
	input  []float64
	output []float64
	dW     [][]float64
	dB     []float64
}

// MLP is a feedforward network with ReLU hidden layers and a linear output per
// horizon. Inputs and targets are standardized with the training moments.
type MLP struct {
	Layers []layer `json:"layers"`
	XScale scaler  `json:"x_scale"`
	YScale scaler  `json:"y_scale"`

	cfg MLPConfig
}

type scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitScaler(M [][]float64, width int) scaler {
	s := scaler{Mean: columnMeans(M, width), Std: make([]float64, width)}
	for _, row := range M {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / float64(len(M)))
		if s.Std[j] < 1e-12 {
			s.Std[j] = 1
		}
	}
	return s
}

func (s scaler) apply(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

func (s scaler) invert(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Std[j] + s.Mean[j]
	}
	return out
}

func (m *MLP) Fit(X, Y [][]float64) error {
	n, p, k, err := checkXY(X, Y)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(m.cfg.Seed, 0x417))
	m.XScale = fitScaler(X, p)
	m.YScale = fitScaler(Y, k)

	sizes := append([]int{p}, m.cfg.Hidden...)
	sizes = append(sizes, k)
	m.initLayers(sizes, rng)

	xs := make([][]float64, n)
	ys := make([][]float64, n)
	for i := range X {
		xs[i] = m.XScale.apply(X[i])
		ys[i] = m.YScale.apply(Y[i])
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	step := 0
	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

		for start := 0; start < n; start += m.cfg.BatchSize {
			end := min(start+m.cfg.BatchSize, n)
			batch := float64(end - start)

			m.zeroGrad()
			for _, idx := range indices[start:end] {
				out := m.forward(xs[idx])
				// MSE gradient averaged over outputs and batch
				grad := make([]float64, k)
				for o := range grad {
					grad[o] = 2 * (out[o] - ys[idx][o]) / (batch * float64(k))
				}
				m.backward(grad)
			}
			step++
			m.adam(step)
		}
	}
	return nil
}

func (m *MLP) Predict(X [][]float64) ([][]float64, error) {
	if len(m.Layers) == 0 {
		return nil, errNotFitted
	}
	if err := checkWidth(X, len(m.XScale.Mean)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = m.YScale.invert(m.eval(m.XScale.apply(x)))
	}
	return out, nil
}

// initLayers uses He initialization.
func (m *MLP) initLayers(sizes []int, rng *rand.Rand) {
	m.Layers = make([]layer, len(sizes)-1)
	for i := range m.Layers {
		in, out := sizes[i], sizes[i+1]
		stddev := math.Sqrt(2.0 / float64(in))
		l := layer{Weights: makeMatrix(out, in), Biases: make([]float64, out)}
		for j := range l.Weights {
			for c := range l.Weights[j] {
				l.Weights[j][c] = rng.NormFloat64() * stddev
			}
		}
		l.mW, l.vW, l.dW = makeMatrix(out, in), makeMatrix(out, in), makeMatrix(out, in)
		l.mB, l.vB, l.dB = make([]float64, out), make([]float64, out), make([]float64, out)
		m.Layers[i] = l
	}
}

// forward caches activations for backward.
func (m *MLP) forward(input []float64) []float64 {
	x := input
	for i := range m.Layers {
		l := &m.Layers[i]
		l.input = x
		l.output = l.activate(x, i < len(m.Layers)-1)
		x = l.output
	}
	return x
}

// eval is forward without caching, safe for concurrent use.
func (m *MLP) eval(input []float64) []float64 {
	x := input
	for i := range m.Layers {
		x = m.Layers[i].activate(x, i < len(m.Layers)-1)
	}
	return x
}

func (l *layer) activate(x []float64, relu bool) []float64 {
	y := make([]float64, len(l.Weights))
	for j, w := range l.Weights {
		sum := l.Biases[j]
		for c, wc := range w {
			sum += wc * x[c]
		}
		if relu && sum < 0 {
			sum = 0
		}
		y[j] = sum
	}
	return y
}

func (m *MLP) backward(dOut []float64) {
	dx := dOut
	for i := len(m.Layers) - 1; i >= 0; i-- {
		l := &m.Layers[i]
		if i < len(m.Layers)-1 {
			for j := range dx {
				if l.output[j] <= 0 {
					dx[j] = 0
				}
			}
		}
		for j := range l.Weights {
			l.dB[j] += dx[j]
			for c := range l.Weights[j] {
				l.dW[j][c] += dx[j] * l.input[c]
			}
		}
		if i > 0 {
			dIn := make([]float64, len(l.input))
			for j, w := range l.Weights {
				for c, wc := range w {
					dIn[c] += dx[j] * wc
				}
			}
			dx = dIn
		}
	}
}

func (m *MLP) zeroGrad() {
	for i := range m.Layers {
		l := &m.Layers[i]
		for j := range l.dW {
			clear(l.dW[j])
		}
		clear(l.dB)
	}
}

func (m *MLP) adam(step int) {
	lr := m.cfg.LearningRate
	c1 := 1 - math.Pow(adamBeta1, float64(step))
	c2 := 1 - math.Pow(adamBeta2, float64(step))
	update := func(w, mom, vel *float64, g float64) {
		*mom = adamBeta1*(*mom) + (1-adamBeta1)*g
		*vel = adamBeta2*(*vel) + (1-adamBeta2)*g*g
		*w -= lr * (*mom / c1) / (math.Sqrt(*vel/c2) + adamEpsilon)
	}
	for i := range m.Layers {
		l := &m.Layers[i]
		for j := range l.Weights {
			for c := range l.Weights[j] {
				update(&l.Weights[j][c], &l.mW[j][c], &l.vW[j][c], l.dW[j][c])
			}
			update(&l.Biases[j], &l.mB[j], &l.vB[j], l.dB[j])
		}
	}
}

func makeMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
