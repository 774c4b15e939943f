package animegan

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// SaveCheckpoint Writes values of provided learnables to the file keyed by node name
func SaveCheckpoint(path string, nodes gorgonia.Nodes) error {
	values := make(map[string]*tensor.Dense, len(nodes))
	for _, n := range nodes {
		dense, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("learnable '%s' does not hold *tensor.Dense", n.Name())
		}
		if _, exists := values[n.Name()]; exists {
			return fmt.Errorf("duplicate learnable name '%s'", n.Name())
		}
		values[n.Name()] = dense
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "Can't create checkpoint directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Can't create checkpoint file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(values); err != nil {
		return errors.Wrap(err, "Can't encode checkpoint")
	}
	return f.Sync()
}

// LoadCheckpoint Reads values saved by SaveCheckpoint into provided learnables (in place). Shapes must match.
func LoadCheckpoint(path string, nodes gorgonia.Nodes) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "Can't open checkpoint file")
	}
	defer f.Close()
	values := make(map[string]*tensor.Dense)
	if err := gob.NewDecoder(f).Decode(&values); err != nil {
		return errors.Wrap(err, "Can't decode checkpoint")
	}
	for _, n := range nodes {
		saved, ok := values[n.Name()]
		if !ok {
			return fmt.Errorf("checkpoint has no value for '%s'", n.Name())
		}
		if n.Value() == nil {
			if err := gorgonia.Let(n, saved); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't set value of '%s'", n.Name()))
			}
			continue
		}
		dst, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("learnable '%s' does not hold *tensor.Dense", n.Name())
		}
		if err := copyDense(dst, saved); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't restore '%s'", n.Name()))
		}
	}
	return nil
}
