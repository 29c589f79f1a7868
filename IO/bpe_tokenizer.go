package IO

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/models"
	"github.com/sugarme/tokenizer/normalizers"
	"github.com/sugarme/tokenizer/pretokenizers"
	"github.com/sugarme/tokenizer/processors"
	"github.com/sugarme/tokenizer/trainers"
)

// Subword tokenizer for the pretrained fine-tuning path. The custom path works
// on raw character codes; this one mirrors how a pretrained chemistry encoder
// tokenizes its input. Treated as a black box by the rest of the system.
var bpeTokenizer *tk.Tokenizer

// TrainOrLoadBPE loads tokenizer.json from tokPath if present, otherwise
// trains a BPE tokenizer on corpusPath (one SMILES per line) and saves it.
// No lowercasing: SMILES case is chemically significant (c aromatic, C
// aliphatic).
func TrainOrLoadBPE(corpusPath, tokPath string, vocabSize int) error {
	if fileExists(tokPath) {
		t, err := tk.FromFile(tokPath)
		if err != nil {
			return err
		}
		bpeTokenizer = t
		return nil
	}

	bpe := models.NewBPE()
	t := tk.NewTokenizer(bpe)

	t.WithNormalizer(normalizers.NewNFKC())
	t.WithPreTokenizer(pretokenizers.NewWhitespaceSplit())

	proc := processors.NewTemplateProcessing(
		"<bos> $A <eos>",
		"$A",
		map[string]int{
			"<bos>": 1,
			"<eos>": 2,
		},
	)
	t.WithPostProcessor(proc)

	tr := trainers.NewBpeTrainer()
	tr.VocabSize = vocabSize
	tr.SpecialTokens = []string{"<pad>", "<bos>", "<eos>", "<unk>"}

	if err := t.Train(tr, []string{corpusPath}); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tokPath), 0o755); err != nil {
		return err
	}
	if err := t.Save(tokPath); err != nil {
		return err
	}
	bpeTokenizer = t
	return nil
}

// EncodeBPE encodes one SMILES string into token IDs.
func EncodeBPE(text string) ([]int, error) {
	if bpeTokenizer == nil {
		return nil, fmt.Errorf("tokenizer not initialized")
	}
	enc, err := bpeTokenizer.EncodeSingle(text)
	if err != nil {
		return nil, err
	}
	ids := enc.Ids
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out, nil
}

// BPEVocabSize reports the loaded tokenizer's vocabulary size.
func BPEVocabSize() (int, error) {
	if bpeTokenizer == nil {
		return 0, fmt.Errorf("tokenizer not initialized")
	}
	return len(bpeTokenizer.GetVocab(true)), nil
}

// WriteCorpus dumps the dataset's SMILES strings one per line for the BPE
// trainer.
func WriteCorpus(examples []Example, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, ex := range examples {
		if _, err := fmt.Fprintln(w, ex.SMILES); err != nil {
			return err
		}
	}
	return w.Flush()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
