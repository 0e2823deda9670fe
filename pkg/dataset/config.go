package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/loader"

	"github.com/go-playground/validator"
)

// Config is the build configuration of a dataset. Every field except
// Overwrite is part of the build fingerprint.
type Config struct {
	// NodeFeatures keeps only these features (names without prefix).
	NodeFeatures []string `json:"node_features"`
	// IgnoreFeatures drops these features from the node tensor.
	IgnoreFeatures []string `json:"ignore_features"`
	EdgeFeatures   []string `json:"edge_features"`
	GlobalFeatures []string `json:"global_features"`
	StrictFeatures bool     `json:"strict_features"`

	Mode            catalog.Mode                 `json:"mode" validate:"required,oneof=composite particle"`
	SubsetUnmatched bool                         `json:"subset_unmatched"`
	Samples         int                          `json:"samples" validate:"gte=0"`
	NFiles          int                          `json:"n_files" validate:"gte=0"`
	Normalize       map[string]catalog.Directive `json:"normalize"`
	Seed            uint64                       `json:"seed"`

	// Overwrite rebuilds even when a committed build exists.
	Overwrite bool `json:"-"`
}

var validate = validator.New()

// Validate checks field constraints and normalization directives.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	for name, d := range c.Normalize {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("feature %q: %w", name, err)
		}
	}
	return nil
}

// Selection returns the feature selection part of the configuration.
func (c Config) Selection() catalog.Selection {
	return catalog.Selection{
		Allow:  c.NodeFeatures,
		Deny:   c.IgnoreFeatures,
		Edge:   c.EdgeFeatures,
		Global: c.GlobalFeatures,
		Strict: c.StrictFeatures,
	}
}

// Fingerprint identifies the graphs a configuration produces from files.
func Fingerprint(cfg Config, files []loader.SourceFile) (string, error) {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	data, err := json.Marshal(struct {
		Config Config   `json:"config"`
		Files  []string `json:"files"`
	}{cfg, ids})
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
