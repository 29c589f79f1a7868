package transformer

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/optimizations"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// Config fixes every model dimension at construction time. Parameters are
// allocated once by New and never resized.
type Config struct {
	VocabSize  int
	DModel     int
	NumHeads   int
	HiddenSize int
	Layers     int
	NumClasses int
	MaxLen     int

	AttnLR float64
	MLPLR  float64
	NormLR float64
	EmbLR  float64
	PosLR  float64
	HeadLR float64
}

// ConfigFromParams lifts the global training config into a model config for
// the given number of classes.
func ConfigFromParams(cfg params.TrainingConfig, layers, numClasses int) Config {
	return Config{
		VocabSize:  cfg.VocabSize,
		DModel:     cfg.DModel,
		NumHeads:   cfg.NumHeads,
		HiddenSize: cfg.HiddenSize,
		Layers:     layers,
		NumClasses: numClasses,
		MaxLen:     cfg.MaxLen,
		AttnLR:     cfg.AttnLR,
		MLPLR:      cfg.MLPLR,
		NormLR:     cfg.NormLR,
		EmbLR:      cfg.EmbLR,
		PosLR:      cfg.PosLR,
		HeadLR:     cfg.HeadLR,
	}
}

// Model is the sequence classifier: token embedding plus learned positional
// encoding, a stack of TransformerBlocks, mean pooling over positions, and a
// linear projection to class logits. Forward is a pure function of the
// parameters and the input; only Backward (driven by the training loop)
// mutates parameters.
type Model struct {
	Cfg Config

	Emb    *mat.Dense // (dModel x vocabSize), one column per token id
	Pos    *mat.Dense // (dModel x maxLen), learned, shared across inputs
	Blocks []TransformerBlock
	Wcls   *mat.Dense // (numClasses x dModel)
	Bcls   *mat.Dense // (numClasses x 1)

	// Adam state for emb/pos/head
	embT, posT, clsT           int
	mEmb, vEmb, mPos, vPos     *mat.Dense
	mWcls, vWcls, mBcls, vBcls *mat.Dense

	// cache for backprop
	lastIDs    []int
	lastPooled *mat.Dense // (dModel x 1)
}

// New builds a model with the given dimensions, drawing all initial weights
// from rng. It fails when DModel is not divisible by NumHeads: heads slice the
// embedding dimension into equal chunks, so the division must be exact.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if cfg.NumHeads <= 0 || cfg.DModel%cfg.NumHeads != 0 {
		return nil, fmt.Errorf("transformer: dModel %d not divisible by numHeads %d", cfg.DModel, cfg.NumHeads)
	}
	if cfg.VocabSize <= 0 || cfg.MaxLen <= 0 || cfg.NumClasses <= 0 || cfg.Layers <= 0 {
		return nil, fmt.Errorf("transformer: non-positive dimension in config %+v", cfg)
	}

	m := &Model{Cfg: cfg}
	m.Emb = mat.NewDense(cfg.DModel, cfg.VocabSize, utils.RandomArray(rng, cfg.DModel*cfg.VocabSize, float64(cfg.DModel)))
	m.Pos = mat.NewDense(cfg.DModel, cfg.MaxLen, utils.RandomArray(rng, cfg.DModel*cfg.MaxLen, float64(cfg.DModel)))
	m.Blocks = make([]TransformerBlock, cfg.Layers)
	for i := range m.Blocks {
		m.Blocks[i] = NewTransformerBlock(cfg.DModel, cfg.HiddenSize, cfg.NumHeads,
			cfg.AttnLR, cfg.MLPLR, cfg.NormLR, rng)
	}
	m.Wcls = mat.NewDense(cfg.NumClasses, cfg.DModel, utils.RandomArray(rng, cfg.NumClasses*cfg.DModel, float64(cfg.DModel)))
	m.Bcls = mat.NewDense(cfg.NumClasses, 1, nil)

	m.mEmb, m.vEmb = utils.ZerosLike(m.Emb), utils.ZerosLike(m.Emb)
	m.mPos, m.vPos = utils.ZerosLike(m.Pos), utils.ZerosLike(m.Pos)
	m.mWcls, m.vWcls = utils.ZerosLike(m.Wcls), utils.ZerosLike(m.Wcls)
	m.mBcls, m.vBcls = utils.ZerosLike(m.Bcls), utils.ZerosLike(m.Bcls)
	return m, nil
}

// Embed maps token ids to (dModel x T) and adds the positional columns.
// Token ids must already be validated at the boundary (EncodeSMILES); a bad id
// here is a caller bug and panics rather than producing garbage.
func (m *Model) Embed(ids []int) *mat.Dense {
	T := len(ids)
	if T == 0 {
		panic("transformer: empty token sequence")
	}
	if T > m.Cfg.MaxLen {
		panic(fmt.Sprintf("transformer: sequence length %d exceeds maxLen %d", T, m.Cfg.MaxLen))
	}
	out := mat.NewDense(m.Cfg.DModel, T, nil)
	for t, id := range ids {
		if id < 0 || id >= m.Cfg.VocabSize {
			panic(fmt.Sprintf("transformer: token id %d outside [0, %d)", id, m.Cfg.VocabSize))
		}
		for i := 0; i < m.Cfg.DModel; i++ {
			out.Set(i, t, m.Emb.At(i, id)+m.Pos.At(i, t))
		}
	}
	return out
}

// Forward runs the full classifier: embed+pos, block stack, unweighted mean
// pool over all positions (padding included), classifier projection. Returns
// (numClasses x 1) logits.
func (m *Model) Forward(ids []int) *mat.Dense {
	X := m.Embed(ids)
	Y := X
	for i := range m.Blocks {
		Y = m.Blocks[i].Forward(Y)
	}
	pooled := utils.MeanCols(Y) // (dModel x 1)

	m.lastIDs = append(m.lastIDs[:0], ids...)
	m.lastPooled = pooled

	logits := utils.ToDense(utils.Dot(m.Wcls, pooled))
	logits.Add(logits, m.Bcls)
	return logits
}

// Predict returns the argmax class id and the softmax probabilities.
func (m *Model) Predict(ids []int) (int, *mat.Dense) {
	probs := utils.ColVectorSoftmax(m.Forward(ids))
	return utils.ArgmaxVec(probs), probs
}

// Backward takes dL/dlogits from the most recent Forward and updates every
// parameter: classifier head, block stack, then embedding columns touched by
// the input and the positional table.
func (m *Model) Backward(gradLogits *mat.Dense) {
	if m.lastPooled == nil {
		panic("transformer: Backward called before Forward")
	}
	T := len(m.lastIDs)

	// head grads before the head is touched
	dWcls := utils.ToDense(utils.Dot(gradLogits, m.lastPooled.T()))
	dBcls := utils.ToDense(utils.Scale(1, gradLogits))
	dPooled := utils.ToDense(utils.Dot(m.Wcls.T(), gradLogits)) // (dModel x 1)

	m.updateHead(dWcls, dBcls)

	// mean pool spreads its gradient evenly over every column
	dY := mat.NewDense(m.Cfg.DModel, T, nil)
	inv := 1.0 / float64(T)
	for i := 0; i < m.Cfg.DModel; i++ {
		g := dPooled.At(i, 0) * inv
		for t := 0; t < T; t++ {
			dY.Set(i, t, g)
		}
	}

	for i := len(m.Blocks) - 1; i >= 0; i-- {
		dY = m.Blocks[i].Backward(dY)
	}

	// dY is now the gradient w.r.t. Emb[:,ids] + Pos[:,:T]
	dEmb := utils.ZerosLike(m.Emb)
	for t, id := range m.lastIDs {
		for i := 0; i < m.Cfg.DModel; i++ {
			dEmb.Set(i, id, dEmb.At(i, id)+dY.At(i, t))
		}
	}
	dPos := utils.ZerosLike(m.Pos)
	for t := 0; t < T; t++ {
		for i := 0; i < m.Cfg.DModel; i++ {
			dPos.Set(i, t, dY.At(i, t))
		}
	}

	if params.Config.GradClip > 0 {
		utils.ClipGrads(params.Config.GradClip, dEmb, dPos)
	}
	m.embT++
	optimizations.AdamUpdateInPlace(m.Emb, dEmb, m.mEmb, m.vEmb, m.embT,
		m.Cfg.EmbLR, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
		params.Config.WeightDecay)
	m.posT++
	optimizations.AdamUpdateInPlace(m.Pos, dPos, m.mPos, m.vPos, m.posT,
		m.Cfg.PosLR, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps, 0.0)
}

// BackwardHeadOnly updates just the classifier projection. Used by the
// fine-tuning path, where the encoder stays frozen.
func (m *Model) BackwardHeadOnly(gradLogits *mat.Dense) {
	if m.lastPooled == nil {
		panic("transformer: BackwardHeadOnly called before Forward")
	}
	dWcls := utils.ToDense(utils.Dot(gradLogits, m.lastPooled.T()))
	dBcls := utils.ToDense(utils.Scale(1, gradLogits))
	m.updateHead(dWcls, dBcls)
}

func (m *Model) updateHead(dWcls, dBcls *mat.Dense) {
	if params.Config.GradClip > 0 {
		utils.ClipGrads(params.Config.GradClip, dWcls, dBcls)
	}
	m.clsT++
	optimizations.AdamUpdateInPlace(m.Wcls, dWcls, m.mWcls, m.vWcls, m.clsT,
		m.Cfg.HeadLR, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps,
		params.Config.WeightDecay)
	optimizations.AdamUpdateInPlace(m.Bcls, dBcls, m.mBcls, m.vBcls, m.clsT,
		m.Cfg.HeadLR, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps, 0.0)
}

// SetParallelHeads toggles goroutine fan-out over attention heads. Off by
// default; worthwhile only when dHead is large enough to beat the goroutine
// overhead.
func (m *Model) SetParallelHeads(on bool) {
	for i := range m.Blocks {
		m.Blocks[i].Attn.parallel = on
	}
}

// SetLearningRates pushes scheduled per-module rates into the stack.
func (m *Model) SetLearningRates(attn, mlp, norm float64) {
	for i := range m.Blocks {
		m.Blocks[i].Attn.LearningRate = attn
		m.Blocks[i].Mlp.LearningRate = mlp
		m.Blocks[i].Ln1.LearningRate = norm
		m.Blocks[i].Ln2.LearningRate = norm
	}
}

// ResetHead replaces the classifier projection for a new label set, drawing
// fresh weights from rng. Encoder weights are untouched.
func (m *Model) ResetHead(numClasses int, rng *rand.Rand) {
	m.Cfg.NumClasses = numClasses
	m.Wcls = mat.NewDense(numClasses, m.Cfg.DModel, utils.RandomArray(rng, numClasses*m.Cfg.DModel, float64(m.Cfg.DModel)))
	m.Bcls = mat.NewDense(numClasses, 1, nil)
	m.mWcls, m.vWcls = utils.ZerosLike(m.Wcls), utils.ZerosLike(m.Wcls)
	m.mBcls, m.vBcls = utils.ZerosLike(m.Bcls), utils.ZerosLike(m.Bcls)
	m.clsT = 0
}
