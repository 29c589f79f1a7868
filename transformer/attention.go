package transformer

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/optimizations"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// Attention is bidirectional multi-head self-attention. Every position attends
// to every position; zero-padding columns are NOT masked out, so pad content
// participates in the score matrix. Callers that care must handle padding
// upstream (see EncodeSMILES).
type Attention struct {
	H            int
	DModel       int
	DHead        int
	Wquery       []*mat.Dense // per head: (dHead x dModel)
	Wkey         []*mat.Dense
	Wvalue       []*mat.Dense
	Woutput      *mat.Dense // (dModel x dModel)
	LearningRate float64

	// Adam
	t        int
	mWq, vWq []*mat.Dense
	mWk, vWk []*mat.Dense
	mWv, vWv []*mat.Dense
	mWo, vWo *mat.Dense

	// cache for backprop
	X       *mat.Dense
	Q, K, V []*mat.Dense
	Scores  []*mat.Dense
	A       []*mat.Dense
	O       []*mat.Dense
	Ocat    *mat.Dense

	parallel bool // parallelize over heads if true
}

// NewAttention builds per-head projections. dModel must divide evenly by
// nHeads; Model construction validates that before calling, so this is an
// internal contract, not a runtime check.
func NewAttention(dModel, nHeads int, lr float64, rng *rand.Rand) *Attention {
	if dModel%nHeads != 0 {
		panic("dModel must be divisible by nHeads")
	}
	dHead := dModel / nHeads
	attn := &Attention{
		H:            nHeads,
		DModel:       dModel,
		DHead:        dHead,
		LearningRate: lr,
		Wquery:       make([]*mat.Dense, nHeads),
		Wkey:         make([]*mat.Dense, nHeads),
		Wvalue:       make([]*mat.Dense, nHeads),
		mWq:          make([]*mat.Dense, nHeads),
		vWq:          make([]*mat.Dense, nHeads),
		mWk:          make([]*mat.Dense, nHeads),
		vWk:          make([]*mat.Dense, nHeads),
		mWv:          make([]*mat.Dense, nHeads),
		vWv:          make([]*mat.Dense, nHeads),
		Q:            make([]*mat.Dense, nHeads),
		K:            make([]*mat.Dense, nHeads),
		V:            make([]*mat.Dense, nHeads),
		Scores:       make([]*mat.Dense, nHeads),
		A:            make([]*mat.Dense, nHeads),
		O:            make([]*mat.Dense, nHeads),
	}
	for h := 0; h < nHeads; h++ {
		attn.Wquery[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Wkey[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Wvalue[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.mWq[h] = mat.NewDense(dHead, dModel, nil)
		attn.vWq[h] = mat.NewDense(dHead, dModel, nil)
		attn.mWk[h] = mat.NewDense(dHead, dModel, nil)
		attn.vWk[h] = mat.NewDense(dHead, dModel, nil)
		attn.mWv[h] = mat.NewDense(dHead, dModel, nil)
		attn.vWv[h] = mat.NewDense(dHead, dModel, nil)
	}
	attn.Woutput = mat.NewDense(dModel, dModel, utils.RandomArray(rng, dModel*dModel, float64(dModel)))
	attn.mWo = mat.NewDense(dModel, dModel, nil)
	attn.vWo = mat.NewDense(dModel, dModel, nil)
	return attn
}

// Forward computes multi-head attention over X (dModel x T) and returns a
// matrix of the same shape. No parameter is mutated.
func (attn *Attention) Forward(X *mat.Dense) *mat.Dense {
	attn.X = X
	_, T := X.Dims() // T = number of columns (sequence length)
	headsCat := mat.NewDense(attn.DModel, T, nil)

	rescale := 1.0 / math.Sqrt(float64(attn.DHead))

	work := func(h int) {
		Q := utils.ToDense(utils.Dot(attn.Wquery[h], X)) // (dHead x T)
		K := utils.ToDense(utils.Dot(attn.Wkey[h], X))
		V := utils.ToDense(utils.Dot(attn.Wvalue[h], X))

		S := utils.ToDense(utils.Scale(rescale, utils.Dot(Q.T(), K))) // (T x T)
		A := utils.RowSoftmax(S)                                      // (T x T), rows sum to 1
		O := utils.ToDense(utils.Dot(V, A.T()))                       // (dHead x T)

		attn.Q[h], attn.K[h], attn.V[h] = Q, K, V
		attn.Scores[h], attn.A[h], attn.O[h] = S, A, O

		// concat into headsCat rows
		base := h * attn.DHead
		dst := headsCat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense)
		dst.Copy(O)
	}
	if attn.parallel && attn.H > 1 {
		var wg sync.WaitGroup
		wg.Add(attn.H)
		for h := 0; h < attn.H; h++ {
			hh := h
			go func() { defer wg.Done(); work(hh) }()
		}
		wg.Wait()
	} else {
		for h := 0; h < attn.H; h++ {
			work(h)
		}
	}
	attn.Ocat = headsCat
	return utils.ToDense(utils.Dot(attn.Woutput, headsCat)) // (dModel x T)
}

// Backward computes grads and applies AdamW updates. Invoked only by the
// training loop; Forward never mutates parameters.
func (attn *Attention) Backward(dY *mat.Dense) *mat.Dense {
	dX, dWq, dWk, dWv, dWout := attn.BackwardGradsOnly(dY)

	attn.t++
	lr := attn.LearningRate
	for h := 0; h < attn.H; h++ {
		optimizations.AdamUpdateInPlace(attn.Wquery[h], dWq[h], attn.mWq[h], attn.vWq[h], attn.t,
			lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
			params.Config.WeightDecay)
		optimizations.AdamUpdateInPlace(attn.Wkey[h], dWk[h], attn.mWk[h], attn.vWk[h], attn.t,
			lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
			params.Config.WeightDecay)
		optimizations.AdamUpdateInPlace(attn.Wvalue[h], dWv[h], attn.mWv[h], attn.vWv[h], attn.t,
			lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
			params.Config.WeightDecay)
	}
	optimizations.AdamUpdateInPlace(attn.Woutput, dWout, attn.mWo, attn.vWo, attn.t,
		lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
		params.Config.WeightDecay)

	return dX
}

// BackwardGradsOnly computes grads but does NOT update weights.
func (attn *Attention) BackwardGradsOnly(dY *mat.Dense) (
	dX *mat.Dense,
	dWq, dWk, dWv []*mat.Dense,
	dWout *mat.Dense,
) {
	dWq = make([]*mat.Dense, attn.H)
	dWk = make([]*mat.Dense, attn.H)
	dWv = make([]*mat.Dense, attn.H)

	_, T := attn.X.Dims()
	if _, dYc := dY.Dims(); dYc != T {
		panic("Attention.BackwardGradsOnly: grad width does not match cached input")
	}

	// dY with respect to Y = Wout * Ocat
	dWout = utils.ToDense(utils.Dot(dY, attn.Ocat.T()))
	dOcat := utils.ToDense(utils.Dot(attn.Woutput.T(), dY))

	dXtotal := mat.NewDense(attn.DModel, T, nil)

	rescale := 1.0 / math.Sqrt(float64(attn.DHead))

	for h := 0; h < attn.H; h++ {
		// slice out this head's portion of dOcat
		base := h * attn.DHead
		dO := dOcat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense)

		// O = V * A^T
		dV := utils.ToDense(utils.Dot(dO, attn.A[h]))       // (dHead x T)
		dAT := utils.ToDense(utils.Dot(attn.V[h].T(), dO)) // (T x T)
		dA := dAT.T()

		// A = softmax_row(S)
		dS := utils.SoftmaxBackward(dA, attn.A[h]) // (T x T)

		// S = Q^T K / sqrt(dHead)
		dQ := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.K[h], dS.T()))) // (dHead x T)
		dK := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.Q[h], dS)))     // (dHead x T)

		// Params
		dWq[h] = utils.ToDense(utils.Dot(dQ, attn.X.T()))
		dWk[h] = utils.ToDense(utils.Dot(dK, attn.X.T()))
		dWv[h] = utils.ToDense(utils.Dot(dV, attn.X.T()))

		// Inputs
		dXq := utils.ToDense(utils.Dot(attn.Wquery[h].T(), dQ))
		dXk := utils.ToDense(utils.Dot(attn.Wkey[h].T(), dK))
		dXv := utils.ToDense(utils.Dot(attn.Wvalue[h].T(), dV))
		dXh := utils.ToDense(utils.Add(utils.Add(dXq, dXk), dXv))
		dXtotal = utils.ToDense(utils.Add(dXtotal, dXh))
	}
	return dXtotal, dWq, dWk, dWv, dWout
}
