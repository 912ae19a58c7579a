package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// kernelSize is the conv receptive field in days. One frame of zero
// padding on each side keeps the output the same length as the input.
const kernelSize = 3

// conv1d mixes features from day t-1, t and t+1 into C channels.
type conv1d struct {
	taps [kernelSize]*mat.Dense // C x F each
	bias *mat.VecDense
}

func newConv1d(w, b Tensor) (*conv1d, error) {
	if len(w.Shape) != 3 || w.Shape[2] != kernelSize {
		return nil, fmt.Errorf("%s: want shape [C F %d], got %v", convWeightKey, kernelSize, w.Shape)
	}
	c, f := w.Shape[0], w.Shape[1]
	if c < 1 || f < 1 {
		return nil, fmt.Errorf("%s: empty shape %v", convWeightKey, w.Shape)
	}
	if len(w.Data) != w.Size() {
		return nil, fmt.Errorf("%s: shape %v needs %d values, got %d", convWeightKey, w.Shape, w.Size(), len(w.Data))
	}
	if !b.hasShape(c) || len(b.Data) != c {
		return nil, fmt.Errorf("%s: want shape [%d], got %v", convBiasKey, c, b.Shape)
	}

	layer := &conv1d{bias: mat.NewVecDense(c, append([]float64(nil), b.Data...))}
	for k := 0; k < kernelSize; k++ {
		tap := mat.NewDense(c, f, nil)
		for o := 0; o < c; o++ {
			for i := 0; i < f; i++ {
				tap.Set(o, i, w.Data[(o*f+i)*kernelSize+k])
			}
		}
		layer.taps[k] = tap
	}
	return layer, nil
}

func (l *conv1d) inputDim() int {
	_, f := l.taps[0].Dims()
	return f
}

func (l *conv1d) channels() int { return l.bias.Len() }

// forward convolves x (T rows of F features) and rectifies the result.
func (l *conv1d) forward(x []*mat.VecDense) []*mat.VecDense {
	out := make([]*mat.VecDense, len(x))
	var term mat.VecDense
	for t := range x {
		y := mat.NewVecDense(l.channels(), nil)
		y.CopyVec(l.bias)
		for k := 0; k < kernelSize; k++ {
			src := t + k - 1
			if src < 0 || src >= len(x) {
				continue
			}
			term.MulVec(l.taps[k], x[src])
			y.AddVec(y, &term)
		}
		relu(y)
		out[t] = y
	}
	return out
}

// lstm is one recurrent layer. Gate rows are ordered input, forget, cell,
// output.
type lstm struct {
	wih    *mat.Dense // 4H x in
	whh    *mat.Dense // 4H x H
	bias   *mat.VecDense
	hidden int
}

func newLSTM(layer, in int, wih, whh, bih, bhh Tensor) (*lstm, error) {
	if len(whh.Shape) != 2 || whh.Shape[0] != 4*whh.Shape[1] {
		return nil, fmt.Errorf("%s: want shape [4H H], got %v", lstmKey("weight_hh", layer), whh.Shape)
	}
	h := whh.Shape[1]
	if h < 1 || in < 1 {
		return nil, fmt.Errorf("lstm layer %d: empty shape (hidden %d, input %d)", layer, h, in)
	}
	checks := []struct {
		key string
		t   Tensor
		dim []int
	}{
		{lstmKey("weight_ih", layer), wih, []int{4 * h, in}},
		{lstmKey("weight_hh", layer), whh, []int{4 * h, h}},
		{lstmKey("bias_ih", layer), bih, []int{4 * h}},
		{lstmKey("bias_hh", layer), bhh, []int{4 * h}},
	}
	for _, c := range checks {
		if !c.t.hasShape(c.dim...) || len(c.t.Data) != c.t.Size() {
			return nil, fmt.Errorf("%s: want shape %v, got %v with %d values", c.key, c.dim, c.t.Shape, len(c.t.Data))
		}
	}

	bias := make([]float64, 4*h)
	for i := range bias {
		bias[i] = bih.Data[i] + bhh.Data[i]
	}

	return &lstm{
		wih:    mat.NewDense(4*h, in, append([]float64(nil), wih.Data...)),
		whh:    mat.NewDense(4*h, h, append([]float64(nil), whh.Data...)),
		bias:   mat.NewVecDense(4*h, bias),
		hidden: h,
	}, nil
}

// forward runs the sequence oldest to newest from a zero state and returns
// the hidden state after every step.
func (l *lstm) forward(x []*mat.VecDense) []*mat.VecDense {
	h := l.hidden
	hs := make([]*mat.VecDense, len(x))
	state := mat.NewVecDense(h, nil)
	cell := mat.NewVecDense(h, nil)

	var gates, rec mat.VecDense
	for t, xt := range x {
		gates.MulVec(l.wih, xt)
		rec.MulVec(l.whh, state)
		gates.AddVec(&gates, &rec)
		gates.AddVec(&gates, l.bias)

		next := mat.NewVecDense(h, nil)
		for j := 0; j < h; j++ {
			i := sigmoid(gates.AtVec(j))
			f := sigmoid(gates.AtVec(h + j))
			g := math.Tanh(gates.AtVec(2*h + j))
			o := sigmoid(gates.AtVec(3*h + j))

			c := f*cell.AtVec(j) + i*g
			cell.SetVec(j, c)
			next.SetVec(j, o*math.Tanh(c))
		}
		state = next
		hs[t] = next
	}
	return hs
}

// linear projects the hidden state to a single logit.
type linear struct {
	weight *mat.VecDense
	bias   float64
}

func newLinear(w, b Tensor, in int) (*linear, error) {
	if !w.hasShape(1, in) || len(w.Data) != in {
		return nil, fmt.Errorf("%s: want shape [1 %d], got %v", fcWeightKey, in, w.Shape)
	}
	if !b.hasShape(1) || len(b.Data) != 1 {
		return nil, fmt.Errorf("%s: want shape [1], got %v", fcBiasKey, b.Shape)
	}
	return &linear{
		weight: mat.NewVecDense(in, append([]float64(nil), w.Data...)),
		bias:   b.Data[0],
	}, nil
}

func (l *linear) forward(h *mat.VecDense) float64 {
	return mat.Dot(l.weight, h) + l.bias
}

func relu(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			v.SetVec(i, 0)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
