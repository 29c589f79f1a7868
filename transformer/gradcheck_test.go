package transformer

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// pooledLoss treats the mean-pooled columns of Y as logits and returns the CE
// loss against gold plus dL/dY with the pool gradient spread over columns.
func pooledLoss(Y *mat.Dense, gold int) (float64, *mat.Dense) {
	pooled := utils.MeanCols(Y)
	loss, g := utils.CrossEntropyWithIndex(pooled, gold)
	d, T := Y.Dims()
	dY := mat.NewDense(d, T, nil)
	inv := 1.0 / float64(T)
	for i := 0; i < d; i++ {
		for t := 0; t < T; t++ {
			dY.Set(i, t, g.At(i, 0)*inv)
		}
	}
	return loss, dY
}

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-4 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

// ---- Attention ----
func TestAttentionGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel := 4
	attn := NewAttention(dModel, 2, 0.0, rng)

	x := mat.NewDense(dModel, 3, utils.RandomArray(rng, dModel*3, float64(dModel)))

	forward := func() float64 {
		loss, _ := pooledLoss(attn.Forward(x), 2)
		return loss
	}

	_, dY := pooledLoss(attn.Forward(x), 2)
	_, dWq, dWk, dWv, dWo := attn.BackwardGradsOnly(dY)

	finiteDiffCheck(t, "Wquery", attn.Wquery[0], dWq[0], forward, 0, 0)
	finiteDiffCheck(t, "Wkey", attn.Wkey[0], dWk[0], forward, 0, 0)
	finiteDiffCheck(t, "Wvalue", attn.Wvalue[0], dWv[0], forward, 0, 0)
	finiteDiffCheck(t, "Woutput", attn.Woutput, dWo, forward, 0, 0)
	finiteDiffCheck(t, "Wquery1", attn.Wquery[1], dWq[1], forward, 1, 2)
}

// ---- Feed-forward ----
func TestMLPGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel := 4
	mlp := NewMLP(dModel, 5, 0.0, rng)

	x := mat.NewDense(dModel, 3, utils.RandomArray(rng, dModel*3, float64(dModel)))

	forward := func() float64 {
		loss, _ := pooledLoss(mlp.Forward(x), 1)
		return loss
	}

	_, dY := pooledLoss(mlp.Forward(x), 1)
	_, dWhid, dbHid, dWout, dbOut := mlp.BackwardGradsOnly(dY)

	finiteDiffCheck(t, "hiddenWeights", mlp.HiddenWeights, dWhid, forward, 0, 0)
	finiteDiffCheck(t, "hiddenBias", mlp.HiddenBias, dbHid, forward, 2, 0)
	finiteDiffCheck(t, "outputWeights", mlp.OutputWeights, dWout, forward, 0, 0)
	finiteDiffCheck(t, "outputBias", mlp.OutputBias, dbOut, forward, 1, 0)
}

// ---- LayerNorm ----
func TestLayerNormGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := 4
	ln := NewLayerNorm(d, 1e-5, 0.0)
	// non-unit affine so the gamma path is exercised
	for i := 0; i < d; i++ {
		ln.Gamma.Set(i, 0, 0.5+0.3*float64(i))
		ln.Beta.Set(i, 0, 0.1*float64(i))
	}

	x := mat.NewDense(d, 3, utils.RandomArray(rng, d*3, float64(d)))

	forward := func() float64 {
		loss, _ := pooledLoss(ln.Forward(x), 0)
		return loss
	}

	_, dY := pooledLoss(ln.Forward(x), 0)
	_, dGamma, dBeta := ln.BackwardGradsOnly(dY)

	finiteDiffCheck(t, "gamma", ln.Gamma, dGamma, forward, 1, 0)
	finiteDiffCheck(t, "beta", ln.Beta, dBeta, forward, 2, 0)
}

// ---- Transformer Block (attention + FFN + both norms) ----
func TestBlockGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel := 4
	block := NewTransformerBlock(dModel, 5, 2, 0.0, 0.0, 0.0, rng)

	x := mat.NewDense(dModel, 3, utils.RandomArray(rng, dModel*3, float64(dModel)))

	forward := func() float64 {
		loss, _ := pooledLoss(block.Forward(x), 2)
		return loss
	}

	_, dY := pooledLoss(block.Forward(x), 2)
	_, dWq, _, _, _, dWhid, _ := block.BackwardGradsOnly(dY)

	finiteDiffCheck(t, "Block.Wquery", block.Attn.Wquery[0], dWq[0], forward, 0, 0)
	finiteDiffCheck(t, "Block.hiddenWeights", block.Mlp.HiddenWeights, dWhid, forward, 0, 0)
}
