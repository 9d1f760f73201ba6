package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// Configuration file names inside the config directory
const (
	FeedFormulaFile = "feed_formula.json"
	MixFormulaFile  = "mix_formula.json"
	InventoryFile   = "inventory.json"
	UsageDir        = "usage"
)

// UsageInput is the daily usage entered for one date
type UsageInput struct {
	FeedUsage models.UsageMatrix `json:"feed_usage"`
	MixUsage  models.UsageMatrix `json:"mix_usage"`
}

// Inputs is everything a computation reads from configuration
type Inputs struct {
	FeedFormula models.IngredientAmounts
	MixFormula  models.IngredientAmounts
	Inventory   models.IngredientAmounts
	// Usage is nil when no usage file exists for the date
	Usage *UsageInput
	// Sources lists the files that were actually read
	Sources []string
}

// HasFormulas reports whether at least one formula is non-empty
func (in *Inputs) HasFormulas() bool {
	return in.FeedFormula.Len() > 0 || in.MixFormula.Len() > 0
}

// ConfigLoader supplies the formula, inventory and usage inputs
type ConfigLoader interface {
	Load(date string) (*Inputs, error)
}

// FileConfigLoader reads inputs from JSON files in one directory
type FileConfigLoader struct {
	dir string
}

// NewFileConfigLoader creates a loader over dir
func NewFileConfigLoader(dir string) *FileConfigLoader {
	return &FileConfigLoader{dir: dir}
}

// UsagePath returns the usage file of a canonical date
func UsagePath(configDir, date string) string {
	return filepath.Join(configDir, UsageDir, "usage_"+date+".json")
}

// Load reads every input. Missing or corrupt files count as empty; only
// unexpected I/O errors are returned.
func (l *FileConfigLoader) Load(date string) (*Inputs, error) {
	in := &Inputs{}
	var err error

	if in.FeedFormula, err = l.readAmounts(FeedFormulaFile, &in.Sources); err != nil {
		return nil, err
	}
	if in.MixFormula, err = l.readAmounts(MixFormulaFile, &in.Sources); err != nil {
		return nil, err
	}
	if in.Inventory, err = l.readAmounts(InventoryFile, &in.Sources); err != nil {
		return nil, err
	}

	usagePath := UsagePath(l.dir, date)
	data, found, err := readOptional(usagePath)
	if err != nil {
		return nil, err
	}
	if found {
		var usage UsageInput
		if err := json.Unmarshal(data, &usage); err != nil {
			logger.Warn("Ignoring corrupt usage file", logger.Date(date), logger.Path(usagePath), logger.ErrorField(err))
		} else {
			in.Usage = &usage
			in.Sources = append(in.Sources, filepath.Join(UsageDir, filepath.Base(usagePath)))
		}
	}
	return in, nil
}

func (l *FileConfigLoader) readAmounts(name string, sources *[]string) (models.IngredientAmounts, error) {
	out := models.NewOrderedMap[float64]()
	path := filepath.Join(l.dir, name)

	data, found, err := readOptional(path)
	if err != nil || !found {
		return out, err
	}

	var raw models.OrderedMap[models.Quantity]
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("Ignoring corrupt configuration file", logger.Path(path), logger.ErrorField(err))
		return out, nil
	}
	raw.Range(func(k string, v models.Quantity) bool {
		out.Set(k, v.Float64())
		return true
	})
	*sources = append(*sources, name)
	return out, nil
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}
