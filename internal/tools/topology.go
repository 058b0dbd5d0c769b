package tools

import (
	"path/filepath"
	"strings"

	"github.com/tastythames/polyrun/internal/cmdline"
	"github.com/tastythames/polyrun/internal/job"
)

// Topology drives topology_cmd.
type Topology struct {
	Input          string `json:"input"`
	RenumberPDB    string `json:"renumber_pdb,omitempty"`
	AssignResidues string `json:"assign_residues,omitempty"`
	FileMap        string `json:"filemap,omitempty"`
	SeparateChains bool   `json:"separate_chains,omitempty"`
	Pattern        string `json:"pattern,omitempty"`
	Unwrap         bool   `json:"unwrap,omitempty"`
	GuessImproper  bool   `json:"guess_improper,omitempty"`
}

func (o *Topology) Spec() (job.Spec, error) {
	if err := required("topology", "input", o.Input); err != nil {
		return job.Spec{}, err
	}

	s := job.Spec{
		Name:       "topology_job",
		Executable: "topology_cmd",
		Args: []cmdline.Arg{
			cmdline.File("-i", o.Input),
			cmdline.File("-r", o.RenumberPDB),
			cmdline.File("-a", o.AssignResidues),
			cmdline.File("--filemap", o.FileMap),
			cmdline.Switch("--separate_chains", o.SeparateChains),
			cmdline.Value("-p", o.Pattern),
			cmdline.Switch("-w", o.Unwrap),
			cmdline.Switch("--guess_improper", o.GuessImproper),
		},
		Inputs:  inputs(o.Input, o.RenumberPDB, o.AssignResidues, o.FileMap),
		LogFile: "InfoTopology.log",
	}

	p := o.Pattern
	if p != "" {
		s.Outputs = append(s.Outputs, job.Output{Name: p + ".pdb"})
	}
	s.Outputs = append(s.Outputs, job.Output{Name: "InfoTopology.log", Log: true})
	if p != "" {
		switch {
		case o.AssignResidues != "":
			s.Outputs = append(s.Outputs, outputs(p+"_residues.gro", p+"_residues.pdb", p+"_residues.psf")...)
		case o.RenumberPDB != "":
			s.Outputs = append(s.Outputs, outputs(p+"_renumber.gro", p+"_renumber.pdb", p+"_renumber.psf")...)
		}
		if o.SeparateChains {
			s.Collect = append(s.Collect, job.Match{Prefix: p, Suffix: ".pdb"})
		}
	}
	return s, nil
}

// Replicate drives replicate_polymer.
type Replicate struct {
	Structure  string `json:"structure"`
	ForceField string `json:"forcefield"`
	Images     [3]int `json:"images"`
	MDEngine   string `json:"mdengine,omitempty"`
	NoH        bool   `json:"noh,omitempty"`
	Index      string `json:"index,omitempty"`

	// BoxLength and BoxAngle are passed only when all three components are set.
	BoxLength [3]string `json:"boxlength,omitempty"`
	BoxAngle  [3]string `json:"boxangle,omitempty"`
	Impropers string    `json:"impropers,omitempty"`
	NPairs    int       `json:"npairs,omitempty"`
	Verbose   bool      `json:"verbose,omitempty"`
}

func (o *Replicate) Spec() (job.Spec, error) {
	if err := required("replicate", "structure", o.Structure); err != nil {
		return job.Spec{}, err
	}
	if err := required("replicate", "forcefield", o.ForceField); err != nil {
		return job.Spec{}, err
	}
	for _, n := range o.Images {
		if n <= 0 {
			return job.Spec{}, errImages
		}
	}

	s := job.Spec{
		Name:       "replicate_job",
		Executable: "replicate_polymer",
		Args: []cmdline.Arg{
			cmdline.File("-p", o.Structure),
			cmdline.File("-f", o.ForceField),
			cmdline.Values("--images", itoa(o.Images[0]), itoa(o.Images[1]), itoa(o.Images[2])),
			cmdline.Value("-e", o.MDEngine),
			cmdline.Switch("--noh", o.NoH),
			cmdline.Value("--index", o.Index),
			cmdline.Values("--boxlength", o.BoxLength[:]...),
			cmdline.Values("--boxangle", o.BoxAngle[:]...),
			cmdline.File("--impropers", o.Impropers),
			cmdline.Int("--npairs", o.NPairs),
			cmdline.Switch("--verbose", o.Verbose),
		},
		Inputs:  inputs(o.Structure, o.ForceField, o.Impropers),
		LogFile: "Info.log",
		Outputs: []job.Output{
			{Name: "allatom_idx_replicate.dat", Log: true},
			{Name: "backbone_idx_replicate.dat"},
			{Name: "listendtoend_replicate.dat"},
			{Name: "Info.log", Log: true},
		},
	}

	if o.NoH {
		base := strings.TrimSuffix(filepath.Base(o.Structure), filepath.Ext(o.Structure))
		if o.MDEngine != "" {
			s.Outputs = append(s.Outputs, outputs(base+"_noH_replicate_clean.inp", base+"_noH_replicate_clean.lmp")...)
		}
		s.Outputs = append(s.Outputs, outputs(
			base+"_noH.gro", base+"_noH.pdb", base+"_noH.top",
			base+"_noH_replicate.gro", base+"_noH_replicate.pdb", base+"_noH_replicate.top",
		)...)
	}
	return s, nil
}
