package IO

import (
	"encoding/json"
	"os"

	"github.com/RAIDxVIPER/Drug-detection-and-Innovation/params"
)

// ExportLabelsJSON persists the label codec so the predict CLI can recover
// compound names without the training CSV.
func ExportLabelsJSON(codec params.LabelCodec, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(codec)
}

func ImportLabelsJSON(path string) (params.LabelCodec, error) {
	var codec params.LabelCodec
	raw, err := os.ReadFile(path)
	if err != nil {
		return codec, err
	}
	if err := json.Unmarshal(raw, &codec); err != nil {
		return codec, err
	}
	return codec, nil
}
