package main

import (
	"fmt"
	"time"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/IO"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/transformer"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// encodeAllBPE tokenizes with the pretrained-path subword tokenizer and pads
// to maxLen with the <pad> id (0). Sequences the tokenizer makes too long are
// dropped with a warning, mirroring the character-path boundary.
func encodeAllBPE(examples []IO.Example, codec params.LabelCodec, maxLen int) ([]encodedExample, error) {
	out := make([]encodedExample, 0, len(examples))
	for _, ex := range examples {
		ids, err := IO.EncodeBPE(ex.SMILES)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 || len(ids) > maxLen {
			fmt.Printf("Warning: skipping %q: %d subword tokens (max %d)\n", ex.SMILES, len(ids), maxLen)
			continue
		}
		padded := make([]int, maxLen)
		copy(padded, ids)
		out = append(out, encodedExample{ids: padded, class: codec.LabelToID[ex.Label]})
	}
	return out, nil
}

// FineTuneClassifier trains only the classification head on top of the frozen
// pretrained encoder. The encoder's weights never move; each step is a forward
// pass plus a head-only update.
func FineTuneClassifier(enc *transformer.Model, trainSet, testSet []encodedExample,
	store *IO.RunStore, runID int64, modelPath string) *transformer.Model {

	var bestAccuracy float64 = -1.0
	var noImprovementCount int

	for e := 0; e < params.Config.MaxEpochs; e++ {
		var totalLoss float64
		var steps float64
		start := time.Now()

		for _, ex := range trainSet {
			logits := enc.Forward(ex.ids)
			loss, gradLogits := utils.CrossEntropyWithIndex(logits, ex.class)
			enc.BackwardHeadOnly(gradLogits)
			totalLoss += loss
			steps++
		}

		avgLoss := totalLoss / steps
		correct, total, _ := evaluate(enc, testSet)
		accuracy := 0.0
		if total > 0 {
			accuracy = float64(correct) / float64(total)
		}
		fmt.Printf("Finetune epoch %d - Acc: %.4f, Loss: %.4f, Time: %v\n",
			e+1, accuracy, avgLoss, time.Since(start))
		if err := store.LogEpoch(runID, e+1, avgLoss, accuracy); err != nil {
			fmt.Println("Warning: run store:", err)
		}

		if accuracy > bestAccuracy {
			bestAccuracy = accuracy
			if err := transformer.Save(enc, modelPath); err != nil {
				fmt.Println("Warning: checkpoint save:", err)
			}
			noImprovementCount = 0
		} else {
			noImprovementCount++
		}
		if noImprovementCount >= params.Config.Patience {
			fmt.Println("\nStopping fine-tuning early due to lack of improvement.")
			break
		}
	}

	if best, err := transformer.Load(modelPath); err == nil {
		return best
	}
	return enc
}
