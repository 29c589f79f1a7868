package transformer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Checkpoints hold only numeric weight data, not optimizer state. A flat
// single-file snapshot; the fine-tuning path loads one of these as its
// pretrained encoder.

type matBlob struct {
	Data []float64
	R, C int
}

func blobOf(m *mat.Dense) matBlob {
	r, c := m.Dims()
	raw := mat.DenseCopyOf(m).RawMatrix()
	data := make([]float64, len(raw.Data))
	copy(data, raw.Data)
	return matBlob{Data: data, R: r, C: c}
}

func (b matBlob) dense() *mat.Dense {
	return mat.NewDense(b.R, b.C, b.Data)
}

type blockBlob struct {
	Wq, Wk, Wv []matBlob
	Wo         matBlob
	HiddenW    matBlob
	HiddenB    matBlob
	OutputW    matBlob
	OutputB    matBlob
	Gamma1     matBlob
	Beta1      matBlob
	Gamma2     matBlob
	Beta2      matBlob
}

type modelBlob struct {
	Cfg    Config
	Emb    matBlob
	Pos    matBlob
	Blocks []blockBlob
	Wcls   matBlob
	Bcls   matBlob
}

// Save persists the model weights to filename using gob.
func Save(m *Model, filename string) error {
	data := modelBlob{
		Cfg:    m.Cfg,
		Emb:    blobOf(m.Emb),
		Pos:    blobOf(m.Pos),
		Blocks: make([]blockBlob, len(m.Blocks)),
		Wcls:   blobOf(m.Wcls),
		Bcls:   blobOf(m.Bcls),
	}
	for i := range m.Blocks {
		b := &m.Blocks[i]
		bb := blockBlob{
			Wq:      make([]matBlob, b.Attn.H),
			Wk:      make([]matBlob, b.Attn.H),
			Wv:      make([]matBlob, b.Attn.H),
			Wo:      blobOf(b.Attn.Woutput),
			HiddenW: blobOf(b.Mlp.HiddenWeights),
			HiddenB: blobOf(b.Mlp.HiddenBias),
			OutputW: blobOf(b.Mlp.OutputWeights),
			OutputB: blobOf(b.Mlp.OutputBias),
			Gamma1:  blobOf(b.Ln1.Gamma),
			Beta1:   blobOf(b.Ln1.Beta),
			Gamma2:  blobOf(b.Ln2.Gamma),
			Beta2:   blobOf(b.Ln2.Beta),
		}
		for h := 0; h < b.Attn.H; h++ {
			bb.Wq[h] = blobOf(b.Attn.Wquery[h])
			bb.Wk[h] = blobOf(b.Attn.Wkey[h])
			bb.Wv[h] = blobOf(b.Attn.Wvalue[h])
		}
		data.Blocks[i] = bb
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return err
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

// Load reads a checkpoint saved by Save and reconstructs the model. Optimizer
// state starts fresh.
func Load(filename string) (*Model, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var data modelBlob
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", filename, err)
	}
	if len(data.Blocks) != data.Cfg.Layers {
		return nil, fmt.Errorf("checkpoint %s: %d blocks but config says %d layers",
			filename, len(data.Blocks), data.Cfg.Layers)
	}

	// construction validates dimensions; weights are then overwritten
	m, err := New(data.Cfg, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	m.Emb = data.Emb.dense()
	m.Pos = data.Pos.dense()
	m.Wcls = data.Wcls.dense()
	m.Bcls = data.Bcls.dense()
	for i := range m.Blocks {
		b := &m.Blocks[i]
		bb := &data.Blocks[i]
		if len(bb.Wq) != b.Attn.H {
			return nil, fmt.Errorf("checkpoint %s: block %d has %d heads, want %d",
				filename, i, len(bb.Wq), b.Attn.H)
		}
		for h := 0; h < b.Attn.H; h++ {
			b.Attn.Wquery[h] = bb.Wq[h].dense()
			b.Attn.Wkey[h] = bb.Wk[h].dense()
			b.Attn.Wvalue[h] = bb.Wv[h].dense()
		}
		b.Attn.Woutput = bb.Wo.dense()
		b.Mlp.HiddenWeights = bb.HiddenW.dense()
		b.Mlp.HiddenBias = bb.HiddenB.dense()
		b.Mlp.OutputWeights = bb.OutputW.dense()
		b.Mlp.OutputBias = bb.OutputB.dense()
		b.Ln1.Gamma = bb.Gamma1.dense()
		b.Ln1.Beta = bb.Beta1.dense()
		b.Ln2.Gamma = bb.Gamma2.dense()
		b.Ln2.Beta = bb.Beta2.dense()
	}
	return m, nil
}
