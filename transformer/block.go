package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// TransformerBlock composes the two residual sublayers:
//
//	x = LN1(x + Attn(x))
//	x = LN2(x + MLP(x))
//
// Post-norm keeps the additive residual path from growing in magnitude as
// blocks stack.
type TransformerBlock struct {
	Attn *Attention
	Mlp  *MLP
	Ln1  *LayerNorm
	Ln2  *LayerNorm
}

func NewTransformerBlock(dModel, hidden, nHeads int, attnLR, mlpLR, normLR float64, rng *rand.Rand) TransformerBlock {
	return TransformerBlock{
		Attn: NewAttention(dModel, nHeads, attnLR, rng),
		Mlp:  NewMLP(dModel, hidden, mlpLR, rng),
		Ln1:  NewLayerNorm(dModel, 1e-5, normLR),
		Ln2:  NewLayerNorm(dModel, 1e-5, normLR),
	}
}

// Forward: input and output are (dModel x T).
func (b *TransformerBlock) Forward(X *mat.Dense) *mat.Dense {
	attnOut := b.Attn.Forward(X)
	X = b.Ln1.Forward(utils.ToDense(utils.Add(X, attnOut)))
	mlpOut := b.Mlp.Forward(X)
	X = b.Ln2.Forward(utils.ToDense(utils.Add(X, mlpOut)))
	return X
}

// Backward propagates through both residual sublayers and applies updates.
// Forward: R1 = X + Attn(X); N1 = LN1(R1); R2 = N1 + MLP(N1); Y = LN2(R2).
func (b *TransformerBlock) Backward(dY *mat.Dense) *mat.Dense {
	dR2 := b.Ln2.Backward(dY)
	dN1 := utils.ToDense(utils.Add(dR2, b.Mlp.Backward(dR2)))
	dR1 := b.Ln1.Backward(dN1)
	dX := utils.ToDense(utils.Add(dR1, b.Attn.Backward(dR1)))
	return dX
}

// BackwardGradsOnly mirrors Backward without touching any weights.
func (b *TransformerBlock) BackwardGradsOnly(dY *mat.Dense) (dX *mat.Dense,
	dWq, dWk, dWv []*mat.Dense, dWo *mat.Dense,
	dWhid, dWout *mat.Dense) {

	dR2, _, _ := b.Ln2.BackwardGradsOnly(dY)
	dMlpX, dWhid, _, dWout, _ := b.Mlp.BackwardGradsOnly(dR2)
	dN1 := utils.ToDense(utils.Add(dR2, dMlpX))
	dR1, _, _ := b.Ln1.BackwardGradsOnly(dN1)
	dAttnX, dWq, dWk, dWv, dWo := b.Attn.BackwardGradsOnly(dR1)
	dX = utils.ToDense(utils.Add(dR1, dAttnX))
	return
}
