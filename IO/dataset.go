package IO

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
)

// Example is one labelled molecule: the structure string and its compound
// identity label.
type Example struct {
	SMILES string
	Label  string
}

// LoadCSV reads a two-column (SMILES,label) dataset. A first row whose first
// cell mentions "smiles" is treated as a header and skipped.
func LoadCSV(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make([]Example, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s: row %d has %d columns, want 2", path, i+1, len(row))
		}
		smiles := strings.TrimSpace(row[0])
		label := strings.TrimSpace(row[1])
		if i == 0 && strings.Contains(strings.ToLower(smiles), "smiles") {
			continue
		}
		if smiles == "" || label == "" {
			continue
		}
		out = append(out, Example{SMILES: smiles, Label: label})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no usable rows", path)
	}
	return out, nil
}

// BuildLabelCodec assigns dense class ids to the distinct labels, sorted for a
// stable mapping across runs.
func BuildLabelCodec(examples []Example) params.LabelCodec {
	seen := map[string]bool{}
	for _, ex := range examples {
		seen[ex.Label] = true
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	toID := make(map[string]int, len(labels))
	for i, l := range labels {
		toID[l] = i
	}
	return params.LabelCodec{LabelToID: toID, IDToLabel: labels}
}

// Split shuffles with the given rng and holds out testFrac of the examples.
func Split(rng *rand.Rand, examples []Example, testFrac float64) (train, test []Example) {
	shuffled := append([]Example(nil), examples...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	n := int(float64(len(shuffled)) * testFrac)
	if n < 1 && len(shuffled) > 1 {
		n = 1
	}
	return shuffled[n:], shuffled[:n]
}

// EncodeSMILES maps each character to its code and right-pads with zeros to
// maxLen. Violations are rejected here, at the boundary, so the numeric core
// never sees an invalid id: strings longer than maxLen, bytes outside
// [1, vocabSize), and NUL (which would collide with the padding id) all error.
func EncodeSMILES(s string, maxLen, vocabSize int) ([]int, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("empty SMILES string")
	}
	if len(s) > maxLen {
		return nil, fmt.Errorf("SMILES length %d exceeds max %d", len(s), maxLen)
	}
	ids := make([]int, maxLen)
	for i := 0; i < len(s); i++ {
		c := int(s[i])
		if c == 0 || c >= vocabSize {
			return nil, fmt.Errorf("character %q at position %d outside vocabulary [1, %d)", s[i], i, vocabSize)
		}
		ids[i] = c
	}
	return ids, nil
}
