package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tsawler/go-trainlog/training"
)

// ROCFile is a YAML document of pre-computed ROC curves:
//
//	title: mnist
//	curves:
//	  - name: ganomaly
//	    fpr: [0, 0.1, 1]
//	    tpr: [0, 0.8, 1]
type ROCFile struct {
	Title  string              `yaml:"title"`
	Curves []training.NamedROC `yaml:"curves"`
}

// LoadROCFile reads and checks a ROC curve file
func LoadROCFile(path string) (*ROCFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ROC file: %w", err)
	}
	return ParseROC(bytes.NewReader(data))
}

// ParseROC decodes a ROC curve document. Every curve must have matching fpr
// and tpr lengths with at least two points; the points are kept in file order.
func ParseROC(r io.Reader) (*ROCFile, error) {
	var file ROCFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse ROC file: %w", err)
	}
	if len(file.Curves) == 0 {
		return nil, fmt.Errorf("%w: ROC file has no curves", ErrInvalidConfig)
	}
	for i, curve := range file.Curves {
		if _, err := curve.AUC(); err != nil {
			name := curve.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("curve %s: %w", name, err)
		}
	}
	return &file, nil
}
