package IO

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeSMILES(t *testing.T) {
	ids, err := EncodeSMILES("HC", 5, 128)
	if err != nil {
		t.Fatal(err)
	}
	exp := []int{72, 67, 0, 0, 0}
	if diff := cmp.Diff(exp, ids); diff != "" {
		t.Errorf("%s", diff)
	}
}

func TestEncodeSMILESAlwaysMaxLen(t *testing.T) {
	for _, s := range []string{"C", "CCO", "c1ccccc1"} {
		ids, err := EncodeSMILES(s, 100, 128)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 100 {
			t.Errorf("%q: got length %d, want 100", s, len(ids))
		}
		for i := len(s); i < 100; i++ {
			if ids[i] != 0 {
				t.Errorf("%q: position %d = %d, want padding 0", s, i, ids[i])
			}
		}
	}
}

func TestEncodeSMILESRejections(t *testing.T) {
	tests := map[string]struct {
		s      string
		maxLen int
	}{
		"too long":  {"CCCCCC", 5},
		"non-ascii": {"Cé", 10},
		"empty":     {"", 10},
	}
	for name, tc := range tests {
		if _, err := EncodeSMILES(tc.s, tc.maxLen, 128); err == nil {
			t.Errorf("%s: expected error for %q", name, tc.s)
		}
	}
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTempCSV(t, "SMILES,Name\nCCO,ethanol\nCC(=O)O,acetic acid\nc1ccccc1,benzene\n")
	examples, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 3 {
		t.Fatalf("got %d examples, want 3 (header skipped)", len(examples))
	}
	if examples[0].SMILES != "CCO" || examples[0].Label != "ethanol" {
		t.Errorf("first row = %+v", examples[0])
	}
}

func TestLoadCSVNoHeader(t *testing.T) {
	path := writeTempCSV(t, "CCO,ethanol\nO,water\n")
	examples, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 2 {
		t.Fatalf("got %d examples, want 2", len(examples))
	}
}

func TestBuildLabelCodec(t *testing.T) {
	examples := []Example{
		{"CCO", "ethanol"},
		{"O", "water"},
		{"OCC", "ethanol"},
	}
	codec := BuildLabelCodec(examples)
	if len(codec.IDToLabel) != 2 {
		t.Fatalf("got %d classes, want 2", len(codec.IDToLabel))
	}
	// sorted for a stable mapping
	if codec.IDToLabel[0] != "ethanol" || codec.IDToLabel[1] != "water" {
		t.Errorf("label order = %v", codec.IDToLabel)
	}
	for id, label := range codec.IDToLabel {
		if codec.LabelToID[label] != id {
			t.Errorf("codec not invertible at %q", label)
		}
	}
}

func TestSplit(t *testing.T) {
	examples := make([]Example, 10)
	for i := range examples {
		examples[i] = Example{SMILES: "C", Label: "x"}
	}
	train, test := Split(rand.New(rand.NewSource(1)), examples, 0.2)
	if len(test) != 2 || len(train) != 8 {
		t.Errorf("split sizes %d/%d, want 8/2", len(train), len(test))
	}

	// same seed, same partition
	t1, _ := Split(rand.New(rand.NewSource(5)), examples, 0.3)
	t2, _ := Split(rand.New(rand.NewSource(5)), examples, 0.3)
	if len(t1) != len(t2) {
		t.Errorf("same seed produced different splits")
	}
}

func TestLabelsJSONRoundTrip(t *testing.T) {
	codec := BuildLabelCodec([]Example{{"C", "methane"}, {"O", "water"}})
	path := filepath.Join(t.TempDir(), "labels.json")
	if err := ExportLabelsJSON(codec, path); err != nil {
		t.Fatal(err)
	}
	got, err := ImportLabelsJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(codec, got); diff != "" {
		t.Errorf("%s", diff)
	}
}
