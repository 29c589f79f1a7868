package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/IO"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/transformer"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/utils"
)

// encodedExample is one dataset row after boundary validation: fixed-length
// padded token ids plus the dense class id.
type encodedExample struct {
	ids   []int
	class int
}

// encodeAll validates every row at the boundary. Rows the encoder rejects
// (too long, non-ASCII) are dropped with a warning rather than truncated.
func encodeAll(examples []IO.Example, codec params.LabelCodec) []encodedExample {
	out := make([]encodedExample, 0, len(examples))
	for _, ex := range examples {
		ids, err := IO.EncodeSMILES(ex.SMILES, params.Config.MaxLen, params.Config.VocabSize)
		if err != nil {
			fmt.Printf("Warning: skipping %q: %v\n", ex.SMILES, err)
			continue
		}
		out = append(out, encodedExample{ids: ids, class: codec.LabelToID[ex.Label]})
	}
	return out
}

// TrainClassifier runs the epoch loop: per-example forward, cross-entropy
// against the gold class, backward through head, stack, embeddings and
// positional table. Early-stops on eval accuracy, checkpoints the best model,
// logs per-epoch metrics to CSV and the run store.
func TrainClassifier(gpt *transformer.Model, trainSet, testSet []encodedExample,
	store *IO.RunStore, runID int64, rng *rand.Rand, modelPath string) *transformer.Model {

	var bestAccuracy float64 = -1.0
	var noImprovementCount int

	logFile, err := os.Create("training_log.csv")
	if err != nil {
		fmt.Println("Error creating log file:", err)
		return gpt
	}
	defer logFile.Close()
	logWriter := csv.NewWriter(logFile)
	logWriter.Write([]string{"epoch", "accuracy", "loss"})
	defer logWriter.Flush()

	adamStep := 0
	order := make([]int, len(trainSet))
	for i := range order {
		order[i] = i
	}

	for e := 0; e < params.Config.MaxEpochs; e++ {
		var totalLoss float64
		var steps float64
		start := time.Now()

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, idx := range order {
			ex := trainSet[idx]

			adamStep++
			attnLR := utils.LRSchedule(adamStep, params.Config.WarmupSteps, params.Config.DecaySteps, params.Config.AttnLR)
			mlpLR := utils.LRSchedule(adamStep, params.Config.WarmupSteps, params.Config.DecaySteps, params.Config.MLPLR)
			normLR := utils.LRSchedule(adamStep, params.Config.WarmupSteps, params.Config.DecaySteps, params.Config.NormLR)
			gpt.SetLearningRates(attnLR, mlpLR, normLR)

			logits := gpt.Forward(ex.ids)
			loss, gradLogits := utils.CrossEntropyWithIndex(logits, ex.class)
			gpt.Backward(gradLogits)

			totalLoss += loss
			steps++

			if params.Config.Debug && adamStep%params.Config.DebugEvery == 0 {
				fmt.Printf("step %d: loss=%.4f Wq[0] norm=%.6g\n",
					adamStep, loss, utils.MatrixNorm(gpt.Blocks[0].Attn.Wquery[0]))
			}
		}

		avgLoss := totalLoss / steps

		correct, total, ceSum := evaluate(gpt, testSet)
		accuracy := 0.0
		evalCE := 0.0
		if total > 0 {
			accuracy = float64(correct) / float64(total)
			evalCE = ceSum / float64(total)
		}
		fmt.Printf("Epoch %d - Acc: %.4f, TrainLoss: %.4f, EvalCE: %.4f, Time: %v\n",
			e+1, accuracy, avgLoss, evalCE, time.Since(start))

		logWriter.Write([]string{
			strconv.Itoa(e + 1),
			strconv.FormatFloat(accuracy, 'f', 4, 64),
			strconv.FormatFloat(avgLoss, 'f', 4, 64),
		})
		logWriter.Flush()
		if err := store.LogEpoch(runID, e+1, avgLoss, accuracy); err != nil {
			fmt.Println("Warning: run store:", err)
		}

		// --- Early stopping on eval accuracy, checkpointing the best ---
		if accuracy > bestAccuracy {
			bestAccuracy = accuracy
			if err := transformer.Save(gpt, modelPath); err != nil {
				fmt.Println("Warning: checkpoint save:", err)
			}
			noImprovementCount = 0
		} else {
			noImprovementCount++
		}
		if noImprovementCount >= params.Config.Patience {
			fmt.Println("\nStopping training early due to lack of improvement in accuracy.")
			break
		}
		if avgLoss < params.Config.Epsilon {
			fmt.Println("\nStopping training early due to loss being too small.")
			break
		}
	}

	// hand back the best checkpoint, not the last state
	if best, err := transformer.Load(modelPath); err == nil {
		return best
	}
	return gpt
}

func evaluate(gpt *transformer.Model, set []encodedExample) (correct, total int, ceSum float64) {
	for _, ex := range set {
		logits := gpt.Forward(ex.ids)
		loss, _ := utils.CrossEntropyWithIndex(logits, ex.class)
		ceSum += loss
		if utils.ArgmaxVec(logits) == ex.class {
			correct++
		}
		total++
	}
	return correct, total, ceSum
}
