package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Batch is one decision file: a set of proposed actions with provenance.
type Batch struct {
	AsOf    time.Time        `json:"as_of"`
	Actions []ProposedAction `json:"actions"`
	Summary string           `json:"summary,omitempty"`
}

// LoadBatch reads a decision file. The file holds either a single batch
// object or a JSON array of batches ordered newest-first, in which case
// element 0 is the current decision (decision producers prepend).
func LoadBatch(path string) (Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("read decision file: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err == nil {
		return batch, nil
	}

	var batches []Batch
	if err := json.Unmarshal(data, &batches); err != nil {
		return Batch{}, fmt.Errorf("parse decision file %s: %w", path, err)
	}
	if len(batches) == 0 {
		return Batch{}, fmt.Errorf("decision file %s is empty", path)
	}
	return batches[0], nil
}
