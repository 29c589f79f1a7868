package params

// LabelCodec maps compound identity labels to dense class ids and back.
// Built once from the training CSV; the inverse mapping recovers the
// human-readable compound name from an argmax index.
type LabelCodec struct {
	LabelToID map[string]int
	IDToLabel []string
}

type TrainingConfig struct {
	// Core transformer parameters
	DModel     int // model width (embed_dim)
	HiddenSize int // feed-forward hidden (ff_dim)
	VocabSize  int // ASCII char codes; SMILES is 7-bit
	NumHeads   int // attention heads; DModel/NumHeads must divide evenly
	MaxLen     int // fixed sequence length; shorter inputs are zero-padded

	// Per-module learning rates
	AttnLR float64
	MLPLR  float64
	NormLR float64
	EmbLR  float64
	PosLR  float64
	HeadLR float64 // classifier projection

	// Optimization parameters
	WarmupSteps int     // linear warmup steps
	DecaySteps  int     // cosine decay steps after warmup (0 = none)
	AdamBeta1   float64 // default 0.9
	AdamBeta2   float64 // default 0.999
	AdamEps     float64 // default 1e-8

	MaxEpochs int     // maximum number of epochs
	Patience  int     // early stopping patience (epochs without a new best accuracy)
	Epsilon   float64 // stop if loss < epsilon
	TestFrac  float64 // fraction of data held out for evaluation

	// Stability parameters
	GradClip    float64 // <=0 disables
	WeightDecay float64 // AdamW-style; 0 disables
	Debug       bool    // enable periodic debug logs
	DebugEvery  int     // print every N optimizer steps
}

// How many times does attn --> mlp happen
var Layers = 2

var Config = TrainingConfig{
	DModel:     128,
	HiddenSize: 256,
	VocabSize:  128, // raw ASCII codes; pad token is 0
	NumHeads:   4,   // dHead = DModel/NumHeads
	MaxLen:     100,

	AttnLR: 0.0005,
	MLPLR:  0.0005,
	NormLR: 0.0005,
	EmbLR:  0.0005,
	PosLR:  0.0005,
	HeadLR: 0.001,

	WarmupSteps: 200,
	DecaySteps:  20_000,
	AdamBeta1:   0.9,
	AdamBeta2:   0.999,
	AdamEps:     1e-8,

	MaxEpochs: 60,
	Patience:  10,
	Epsilon:   1e-4,
	TestFrac:  0.2,

	GradClip:    1.0,
	WeightDecay: 0.01,
	Debug:       false,
	DebugEvery:  1000,
}
