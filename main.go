package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/IO"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/transformer"
)

var (
	trainFlag    bool
	finetuneFlag bool
	predictFlag  bool

	dataPath       string
	modelPath      string
	labelsPath     string
	pretrainedPath string
	tokPath        string
	dbPath         string
	seed           int64
	epochsOverride int
	layersOverride int
	parallelHeads  bool
)

func init() {
	flag.BoolVar(&trainFlag, "train", false, "Train the from-scratch transformer classifier")
	flag.BoolVar(&finetuneFlag, "finetune", false, "Fine-tune a pretrained encoder checkpoint (head only)")
	flag.BoolVar(&predictFlag, "predict", false, "Interactive SMILES prediction prompt")

	flag.StringVar(&dataPath, "data", "data/compounds.csv", "Training CSV (SMILES,label)")
	flag.StringVar(&modelPath, "model", "models/best_model.gob", "Model checkpoint path")
	flag.StringVar(&labelsPath, "labels", "models/labels.json", "Label codec path")
	flag.StringVar(&pretrainedPath, "pretrained", "models/pretrained_encoder.gob", "Pretrained encoder checkpoint (finetune)")
	flag.StringVar(&tokPath, "tok", "models/tokenizer.json", "BPE tokenizer path (finetune)")
	flag.StringVar(&dbPath, "db", "models/runs.db", "Run store (SQLite)")
	flag.Int64Var(&seed, "seed", 42, "RNG seed for init/shuffles")
	flag.IntVar(&epochsOverride, "epochs", 0, "Override MaxEpochs (0 = config default)")
	flag.IntVar(&layersOverride, "layers", 0, "Override block count (0 = config default)")
	flag.BoolVar(&parallelHeads, "parallel", false, "Run attention heads on separate goroutines")
}

func main() {
	flag.Parse()

	if epochsOverride > 0 {
		params.Config.MaxEpochs = epochsOverride
	}
	if layersOverride > 0 {
		params.Layers = layersOverride
	}
	rng := rand.New(rand.NewSource(seed))

	switch {
	case trainFlag:
		if err := runTrain(rng); err != nil {
			fmt.Fprintln(os.Stderr, "train:", err)
			os.Exit(1)
		}
	case finetuneFlag:
		if err := runFineTune(rng); err != nil {
			fmt.Fprintln(os.Stderr, "finetune:", err)
			os.Exit(1)
		}
	case predictFlag:
		if err := runPredict(); err != nil {
			fmt.Fprintln(os.Stderr, "predict:", err)
			os.Exit(1)
		}
	default:
		fmt.Println("No mode given. Use -train, -finetune, or -predict.")
	}
}

func runTrain(rng *rand.Rand) error {
	examples, err := IO.LoadCSV(dataPath)
	if err != nil {
		return err
	}
	codec := IO.BuildLabelCodec(examples)
	trainSet, testSet := IO.Split(rng, examples, params.Config.TestFrac)
	fmt.Printf("Loaded %d examples (%d classes): %d train / %d test\n",
		len(examples), len(codec.IDToLabel), len(trainSet), len(testSet))

	cfg := transformer.ConfigFromParams(params.Config, params.Layers, len(codec.IDToLabel))
	gpt, err := transformer.New(cfg, rng)
	if err != nil {
		return err
	}
	gpt.SetParallelHeads(parallelHeads)

	store, runID, err := openRun("train")
	if err != nil {
		return err
	}
	defer store.Close()

	trainEnc := encodeAll(trainSet, codec)
	testEnc := encodeAll(testSet, codec)

	gpt = TrainClassifier(gpt, trainEnc, testEnc, store, runID, rng, modelPath)

	if err := IO.ExportLabelsJSON(codec, labelsPath); err != nil {
		return err
	}
	fmt.Println("Training complete. Model:", modelPath)
	return nil
}

func runFineTune(rng *rand.Rand) error {
	examples, err := IO.LoadCSV(dataPath)
	if err != nil {
		return err
	}
	codec := IO.BuildLabelCodec(examples)
	trainSet, testSet := IO.Split(rng, examples, params.Config.TestFrac)

	enc, err := transformer.Load(pretrainedPath)
	if err != nil {
		return fmt.Errorf("load pretrained encoder: %w", err)
	}
	enc.SetParallelHeads(parallelHeads)

	corpusPath := "models/smiles_corpus.txt"
	if err := IO.WriteCorpus(examples, corpusPath); err != nil {
		return err
	}
	if err := IO.TrainOrLoadBPE(corpusPath, tokPath, enc.Cfg.VocabSize); err != nil {
		return err
	}
	vs, err := IO.BPEVocabSize()
	if err != nil {
		return err
	}
	if vs > enc.Cfg.VocabSize {
		return fmt.Errorf("tokenizer vocab %d exceeds encoder vocab %d", vs, enc.Cfg.VocabSize)
	}

	enc.ResetHead(len(codec.IDToLabel), rng)

	store, runID, err := openRun("finetune")
	if err != nil {
		return err
	}
	defer store.Close()

	trainEnc, err := encodeAllBPE(trainSet, codec, enc.Cfg.MaxLen)
	if err != nil {
		return err
	}
	testEnc, err := encodeAllBPE(testSet, codec, enc.Cfg.MaxLen)
	if err != nil {
		return err
	}

	enc = FineTuneClassifier(enc, trainEnc, testEnc, store, runID, modelPath)

	if err := IO.ExportLabelsJSON(codec, labelsPath); err != nil {
		return err
	}
	fmt.Println("Fine-tuning complete. Model:", modelPath)
	return nil
}

func runPredict() error {
	gpt, err := transformer.Load(modelPath)
	if err != nil {
		return err
	}
	codec, err := IO.ImportLabelsJSON(labelsPath)
	if err != nil {
		return err
	}
	store, runID, err := openRun("predict")
	if err != nil {
		return err
	}
	defer store.Close()
	PredictCLI(gpt, codec, store, runID)
	return nil
}

func openRun(kind string) (*IO.RunStore, int64, error) {
	if err := os.MkdirAll("models", 0o755); err != nil {
		return nil, 0, err
	}
	store, err := IO.OpenRunStore(dbPath)
	if err != nil {
		return nil, 0, err
	}
	cfgJSON, _ := json.Marshal(params.Config)
	runID, err := store.CreateRun(kind, string(cfgJSON))
	if err != nil {
		store.Close()
		return nil, 0, err
	}
	return store, runID, nil
}
