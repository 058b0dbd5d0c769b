// Package tools holds the flag grammars of the external simulation tools.
//
// Flag names and inclusion rules mirror what the tools accept; renaming any
// of them breaks the tools, not this package.
package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tastythames/polyrun/internal/job"
)

// Options is implemented by every tool's option set.
type Options interface {
	Spec() (job.Spec, error)
}

var (
	toolsMu sync.RWMutex
	tools   = make(map[string]func() Options)
)

// Register makes a tool available by name. It panics on duplicates.
func Register(name string, newOptions func() Options) {
	toolsMu.Lock()
	defer toolsMu.Unlock()

	if newOptions == nil {
		panic("tools: Register options constructor is nil")
	}
	if _, dup := tools[name]; dup {
		panic("tools: Register called twice for tool " + name)
	}
	tools[name] = newOptions
}

// Names lists the registered tools.
func Names() []string {
	toolsMu.RLock()
	defer toolsMu.RUnlock()

	out := make([]string, 0, len(tools))
	for n := range tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var ErrUnknownTool = errors.New("tools: unknown tool")

// Build decodes raw options for the named tool and returns its job spec.
func Build(name string, raw json.RawMessage) (job.Spec, error) {
	toolsMu.RLock()
	newOptions, ok := tools[name]
	toolsMu.RUnlock()
	if !ok {
		return job.Spec{}, fmt.Errorf("%w %q", ErrUnknownTool, name)
	}

	opts := newOptions()
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(opts); err != nil {
			return job.Spec{}, fmt.Errorf("tools: decode %s options: %w", name, err)
		}
	}
	return opts.Spec()
}

func init() {
	Register("topology", func() Options { return &Topology{} })
	Register("replicate", func() Options { return &Replicate{} })
	Register("polymer_size", func() Options { return &PolymerSize{} })
	Register("energy_info", func() Options { return &EnergyInfo{} })
	Register("energy_calc", func() Options { return &EnergyCalc{} })
	Register("bonded_generate", func() Options { return &BondedGenerate{} })
	Register("bonded_calculate", func() Options { return &BondedCalculate{} })
	Register("torsion_maps", func() Options { return &TorsionMaps{} })
	Register("pair_distribution", func() Options { return &PairDistribution{} })
	Register("neighbor_sphere", func() Options { return &NeighborSphere{} })
	Register("votca_ibi", func() Options { return &VotcaIBI{} })
}

func required(tool, field, v string) error {
	if v == "" {
		return fmt.Errorf("tools: %s: %s is required", tool, field)
	}
	return nil
}

// inputs collects the non-empty local paths to stage.
func inputs(paths ...string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func outputs(names ...string) []job.Output {
	out := make([]job.Output, 0, len(names))
	for _, n := range names {
		out = append(out, job.Output{Name: n})
	}
	return out
}
