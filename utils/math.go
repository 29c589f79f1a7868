package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Matrix functions used for the calculations in the program

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func Subtract(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Sub(m, n)
	return o
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

// RandomArray draws uniform values in [-1/sqrt(fanIn), 1/sqrt(fanIn)] from the
// given rng. The rng is passed explicitly so construction never touches
// process-global random state.
func RandomArray(rng *rand.Rand, size int, fanIn float64) []float64 {
	min := -1.0 / math.Sqrt(fanIn+1e-12)
	max := 1.0 / math.Sqrt(fanIn+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rng.Float64()
	}
	return out
}

func OneHot(n, idx int) *mat.Dense {
	v := make([]float64, n)
	if idx >= 0 && idx < n {
		v[idx] = 1.0
	}
	return mat.NewDense(n, 1, v)
}

// MeanCols averages a (d x T) matrix over its columns into a (d x 1) vector.
// All columns contribute equally, padding positions included.
func MeanCols(m *mat.Dense) *mat.Dense {
	d, T := m.Dims()
	if T == 0 {
		panic("MeanCols: empty matrix")
	}
	out := mat.NewDense(d, 1, nil)
	inv := 1.0 / float64(T)
	for i := 0; i < d; i++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s += m.At(i, t)
		}
		out.Set(i, 0, s*inv)
	}
	return out
}

func ArgmaxVec(v *mat.Dense) int {
	r, c := v.Dims()
	if c != 1 {
		panic("ArgmaxVec expects a (r x 1) column vector")
	}
	best := 0
	for i := 1; i < r; i++ {
		if v.At(i, 0) > v.At(best, 0) {
			best = i
		}
	}
	return best
}

func MatrixNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// ClipGrads rescales all grads in place so their joint L2 norm is <= maxNorm.
// Returns the applied scale (1.0 if no clipping happened).
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	total := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		total += n * n
	}
	total = math.Sqrt(total)
	if total <= maxNorm {
		return 1.0
	}
	s := maxNorm / (total + 1e-12)
	for _, g := range grads {
		if g == nil {
			continue
		}
		g.Scale(s, g)
	}
	return s
}

// ---------- Activations ----------

// ReLU for use with Apply: negatives clamped to zero.
func ReLU(r, c int, z float64) float64 {
	if z < 0 {
		return 0
	}
	return z
}

// ReLUPrime is the elementwise derivative taken at the pre-activation.
func ReLUPrime(pre mat.Matrix) mat.Matrix {
	r, c := pre.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if pre.At(i, j) > 0 {
				out.Set(i, j, 1)
			}
		}
	}
	return out
}

// ---------- Softmax variants ----------

// RowSoftmax applies softmax independently to each row across columns.
// Used by attention (scores have shape [T x T]; row sums should be 1).
func RowSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		// numerical stability
		mx := row[0]
		for _, v := range row {
			if v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			row[j] = math.Exp(row[j] - mx)
			sum += row[j]
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, row[j]/sum)
		}
	}
	return out
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// Used for logits -> probabilities in the CE loss.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	// stability: subtract max
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// SoftmaxBackward for row-wise softmax used in attention.
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		// Jacobian-vector product per row
		for j := 0; j < c; j++ {
			grad := 0.0
			for k := 0; k < c; k++ {
				if j == k {
					grad += A.At(i, j) * (1.0 - A.At(i, k)) * dA.At(i, k)
				} else {
					grad += -A.At(i, j) * A.At(i, k) * dA.At(i, k)
				}
			}
			dS.Set(i, j, grad)
		}
	}
	return dS
}

// ---------- Loss ----------

// CrossEntropyWithIndex computes CE loss of logits against a gold class id and
// the gradient (p - onehot) w.r.t. the logits.
func CrossEntropyWithIndex(logits *mat.Dense, goldID int) (float64, *mat.Dense) {
	prob := ColVectorSoftmax(logits)
	r, _ := prob.Dims()
	if goldID < 0 || goldID >= r {
		panic("CrossEntropyWithIndex: gold id out of range")
	}
	grad := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		p := prob.At(i, 0)
		t := 0.0
		if i == goldID {
			t = 1.0
		}
		grad.Set(i, 0, p-t)
	}
	loss := -math.Log(prob.At(goldID, 0) + 1e-12)
	return loss, grad
}

// ------- LR schedule: linear warmup, then cosine decay --------

func LRSchedule(step, warmup, decay int, peak float64) float64 {
	if step <= 0 {
		return 0
	}
	if warmup > 0 && step < warmup {
		return peak * float64(step) / float64(warmup)
	}
	if decay > 0 {
		x := float64(step-warmup) / float64(decay)
		if x > 1 {
			x = 1
		} else if x < 0 {
			x = 0
		}
		scale := 0.5 * (1 + math.Cos(math.Pi*x))
		return peak * scale
	}
	return peak
}
