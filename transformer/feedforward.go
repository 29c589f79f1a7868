package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/optimizations"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// MLP is the pointwise feed-forward sublayer: expand to HiddenSize, ReLU,
// contract back to DModel. Weights are shared across sequence positions; each
// column of the input is transformed independently.
type MLP struct {
	Inputs, Hiddens, Outputs  int
	HiddenWeights, HiddenBias *mat.Dense
	OutputWeights, OutputBias *mat.Dense
	LearningRate              float64

	// Adam
	t                  int
	mHiddenW, vHiddenW *mat.Dense
	mHiddenB, vHiddenB *mat.Dense
	mOutputW, vOutputW *mat.Dense
	mOutputB, vOutputB *mat.Dense

	// cache for backprop
	LastInput, HiddenPreAct, HiddenOutputs, FinalOutputs *mat.Dense
}

func NewMLP(dModel, hidden int, lr float64, rng *rand.Rand) *MLP {
	return &MLP{
		Inputs:        dModel,
		Hiddens:       hidden,
		Outputs:       dModel,
		LearningRate:  lr,
		HiddenWeights: mat.NewDense(hidden, dModel, utils.RandomArray(rng, dModel*hidden, float64(dModel))),
		HiddenBias:    mat.NewDense(hidden, 1, nil),
		OutputWeights: mat.NewDense(dModel, hidden, utils.RandomArray(rng, hidden*dModel, float64(hidden))),
		OutputBias:    mat.NewDense(dModel, 1, nil),
		mHiddenW:      mat.NewDense(hidden, dModel, nil),
		vHiddenW:      mat.NewDense(hidden, dModel, nil),
		mHiddenB:      mat.NewDense(hidden, 1, nil),
		vHiddenB:      mat.NewDense(hidden, 1, nil),
		mOutputW:      mat.NewDense(dModel, hidden, nil),
		vOutputW:      mat.NewDense(dModel, hidden, nil),
		mOutputB:      mat.NewDense(dModel, 1, nil),
		vOutputB:      mat.NewDense(dModel, 1, nil),
	}
}

func (mlp *MLP) Forward(X *mat.Dense) *mat.Dense {
	mlp.LastInput = X
	hiddenLin := utils.ToDense(utils.Dot(mlp.HiddenWeights, X)) // (h x T)
	hiddenWithBias := addBias(hiddenLin, mlp.HiddenBias)        // (h x T)
	mlp.HiddenPreAct = hiddenWithBias
	mlp.HiddenOutputs = utils.Apply(utils.ReLU, hiddenWithBias).(*mat.Dense)
	finalLin := utils.ToDense(utils.Dot(mlp.OutputWeights, mlp.HiddenOutputs)) // (d x T)
	finalWithBias := addBias(finalLin, mlp.OutputBias)                         // (d x T)
	mlp.FinalOutputs = finalWithBias
	return mlp.FinalOutputs
}

func (mlp *MLP) Backward(grad *mat.Dense) *mat.Dense {
	dX, dWhid, dbHidden, dWout, dbOut := mlp.BackwardGradsOnly(grad)
	mlp.t++
	lr := mlp.LearningRate

	// AdamW: weight decay only on weights, not biases
	optimizations.AdamUpdateInPlace(mlp.OutputWeights, dWout, mlp.mOutputW, mlp.vOutputW,
		mlp.t, lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
		params.Config.WeightDecay)
	optimizations.AdamUpdateInPlace(mlp.OutputBias, dbOut, mlp.mOutputB, mlp.vOutputB, mlp.t,
		lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps, 0.0)
	optimizations.AdamUpdateInPlace(mlp.HiddenWeights, dWhid, mlp.mHiddenW, mlp.vHiddenW,
		mlp.t, lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
		params.Config.WeightDecay)
	optimizations.AdamUpdateInPlace(mlp.HiddenBias, dbHidden, mlp.mHiddenB, mlp.vHiddenB,
		mlp.t, lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps, 0.0)
	return dX
}

func (mlp *MLP) BackwardGradsOnly(grad *mat.Dense) (dX, dWhid, dbHidden, dWout, dbOut *mat.Dense) {
	dWout = utils.ToDense(utils.Dot(grad, mlp.HiddenOutputs.T()))
	// sum gradients over time for biases
	_, T := grad.Dims()
	dbOut = mat.NewDense(mlp.Outputs, 1, nil)
	for i := 0; i < mlp.Outputs; i++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s += grad.At(i, t)
		}
		dbOut.Set(i, 0, s)
	}

	hiddenGradOut := utils.ToDense(utils.Dot(mlp.OutputWeights.T(), grad)) // dL/d(hidden_out)
	hiddenErrors := utils.Multiply(hiddenGradOut, utils.ReLUPrime(mlp.HiddenPreAct)).(*mat.Dense)

	dWhid = utils.ToDense(utils.Dot(hiddenErrors, mlp.LastInput.T()))
	dbHidden = mat.NewDense(mlp.Hiddens, 1, nil)
	for i := 0; i < mlp.Hiddens; i++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s += hiddenErrors.At(i, t)
		}
		dbHidden.Set(i, 0, s)
	}

	dX = utils.ToDense(utils.Dot(mlp.HiddenWeights.T(), hiddenErrors))
	return dX, dWhid, dbHidden, dWout, dbOut
}

// addBias broadcasts a (r x 1) bias across every column of m.
func addBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		b := bias.At(i, 0)
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)+b)
		}
	}
	return out
}
