package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/IO"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/transformer"
)

// PredictCLI reads SMILES strings from stdin and prints the predicted
// compound with its softmax confidence. Every served prediction lands in the
// run store.
func PredictCLI(gpt *transformer.Model, codec params.LabelCodec, store *IO.RunStore, runID int64) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("SMILES classifier. Type 'exit' to quit.")
	for {
		fmt.Print("SMILES> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "exit" {
			break
		}
		if input == "" {
			continue
		}

		ids, err := IO.EncodeSMILES(input, gpt.Cfg.MaxLen, gpt.Cfg.VocabSize)
		if err != nil {
			fmt.Println("Invalid input:", err)
			continue
		}
		class, probs := gpt.Predict(ids)
		label := "?"
		if class >= 0 && class < len(codec.IDToLabel) {
			label = codec.IDToLabel[class]
		}
		conf := probs.At(class, 0)
		fmt.Printf("Predicted: %s (%.1f%%)\n", label, conf*100)

		if err := store.LogPrediction(runID, input, label, conf); err != nil {
			fmt.Println("Warning: run store:", err)
		}
	}
}
