package tools

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tastythames/polyrun/internal/cmdline"
	"github.com/tastythames/polyrun/internal/job"
)

var errImages = errors.New("tools: replicate: images needs three positive counts")

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// withLog appends the user-chosen log file as a log output.
func withLog(s job.Spec, logName string) job.Spec {
	if logName == "" {
		return s
	}
	s.Outputs = append([]job.Output{{Name: logName, Log: true}}, s.Outputs...)
	s.LogFile = logName
	return s
}

// PolymerSize drives polymer_size.
type PolymerSize struct {
	Trajectories   []string `json:"trajectories"`
	Topology       string   `json:"topology"`
	Stride         int      `json:"stride,omitempty"`
	FractionTrjAvg float64  `json:"fraction_trj_avg,omitempty"`
	EndToEnd       string   `json:"e2e,omitempty"`
	EndToEndACF    bool     `json:"e2acf,omitempty"`
	C2N            string   `json:"c2n,omitempty"`
	Log            string   `json:"log,omitempty"`
	Distributions  bool     `json:"distributions,omitempty"`
	BondOrient     bool     `json:"bondorientation,omitempty"`
	Unwrap         bool     `json:"unwrap,omitempty"`
	RgMassWeighted bool     `json:"rg_massw,omitempty"`
	Legendre       bool     `json:"isodf,omitempty"`
}

func (o *PolymerSize) Spec() (job.Spec, error) {
	if len(o.Trajectories) == 0 {
		return job.Spec{}, required("polymer_size", "trajectories", "")
	}
	if err := required("polymer_size", "topology", o.Topology); err != nil {
		return job.Spec{}, err
	}

	s := job.Spec{
		Name:       "polymer_size_job",
		Executable: "polymer_size",
		Args: []cmdline.Arg{
			cmdline.Files("-t", o.Trajectories...),
			cmdline.File("--topo", o.Topology),
			cmdline.Int("--stride", o.Stride),
			cmdline.Float("--fraction_trj_avg", o.FractionTrjAvg),
			cmdline.File("--e2e", o.EndToEnd),
			cmdline.Switch("--e2acf", o.EndToEndACF),
			cmdline.File("--c2n", o.C2N),
			cmdline.Value("--log", o.Log),
			cmdline.Switch("-d", o.Distributions),
			cmdline.Switch("--bondorientation", o.BondOrient),
			cmdline.Bool("--unwrap", o.Unwrap),
			cmdline.Switch("--rg_massw", o.RgMassWeighted),
			cmdline.Switch("--isodf", o.Legendre),
		},
		Inputs:  inputs(append(append([]string{}, o.Trajectories...), o.Topology, o.EndToEnd, o.C2N)...),
		Outputs: outputs("gnuplot_charratio.gnu", "gnuplot_dimensions.gnu", "gnuplot_distributions.gnu", "Rg.dat"),
	}
	if o.EndToEnd != "" {
		s.Outputs = append(s.Outputs, outputs("Ree2Rg2.dat", "Ree.dat")...)
	}
	if o.RgMassWeighted {
		s.Outputs = append(s.Outputs, outputs("Rg_mass.dat")...)
	}
	return withLog(s, o.Log), nil
}

// EnergyInfo drives "energy_analysis info".
type EnergyInfo struct {
	Energy string `json:"energy"`
	Log    string `json:"log,omitempty"`
}

func (o *EnergyInfo) Spec() (job.Spec, error) {
	if err := required("energy_info", "energy", o.Energy); err != nil {
		return job.Spec{}, err
	}
	s := job.Spec{
		Name:       "energy_info_job",
		Executable: "energy_analysis",
		Args: []cmdline.Arg{
			cmdline.Word("info"),
			cmdline.File("-e", o.Energy),
			cmdline.Value("--log", o.Log),
		},
		Inputs: inputs(o.Energy),
	}
	return withLog(s, o.Log), nil
}

// EnergyCalc drives "energy_analysis calc".
type EnergyCalc struct {
	Energy     string  `json:"energy"`
	Log        string  `json:"log,omitempty"`
	TBegin     float64 `json:"tbegin,omitempty"`
	TEnd       float64 `json:"tend,omitempty"`
	JoinPath   string  `json:"joinpath,omitempty"`
	GroupTerms bool    `json:"groupterms,omitempty"`
	Average    bool    `json:"avg,omitempty"`
	ACF        string  `json:"acf,omitempty"`
}

func (o *EnergyCalc) Spec() (job.Spec, error) {
	if err := required("energy_calc", "energy", o.Energy); err != nil {
		return job.Spec{}, err
	}
	s := job.Spec{
		Name:       "energy_calc_job",
		Executable: "energy_analysis",
		Args: []cmdline.Arg{
			cmdline.Word("calc"),
			cmdline.File("-e", o.Energy),
			cmdline.Value("--log", o.Log),
			cmdline.Float("--tbegin", o.TBegin),
			cmdline.Float("--tend", o.TEnd),
			cmdline.Value("--joinpath", o.JoinPath),
			cmdline.Switch("--groupterms", o.GroupTerms),
			cmdline.Switch("--avg", o.Average),
			cmdline.File("--acf", o.ACF),
		},
		Inputs: inputs(o.Energy, o.ACF),
	}
	if o.JoinPath != "" {
		s.Outputs = append(s.Outputs, outputs("united_edr.edr")...)
	}
	if o.ACF != "" {
		s.Outputs = append(s.Outputs, outputs("acf_data.dat")...)
	}
	return withLog(s, o.Log), nil
}

// BondedGenerate drives "bonded_distribution generate".
type BondedGenerate struct {
	Trajectories []string `json:"trajectories"`
	ListBB       string   `json:"listbb"`
	Topology     string   `json:"topology,omitempty"`
	Log          string   `json:"log,omitempty"`
}

func (o *BondedGenerate) Spec() (job.Spec, error) {
	if len(o.Trajectories) == 0 {
		return job.Spec{}, required("bonded_generate", "trajectories", "")
	}
	if err := required("bonded_generate", "listbb", o.ListBB); err != nil {
		return job.Spec{}, err
	}
	s := job.Spec{
		Name:       "bonded_generate_job",
		Executable: "bonded_distribution",
		Args: []cmdline.Arg{
			cmdline.Word("generate"),
			cmdline.Files("-t", o.Trajectories...),
			cmdline.File("--listbb", o.ListBB),
			cmdline.File("--topo", o.Topology),
			cmdline.Value("--log", o.Log),
		},
		Inputs: inputs(append(append([]string{}, o.Trajectories...), o.ListBB, o.Topology)...),
	}
	return withLog(s, o.Log), nil
}

// BondedCalculate drives "bonded_distribution calculate".
type BondedCalculate struct {
	Trajectories []string `json:"trajectories"`
	Topology     string   `json:"topology"`
	Unwrap       bool     `json:"unwrap,omitempty"`
	Bonds        string   `json:"bonds,omitempty"`
	Angles       string   `json:"angles,omitempty"`
	Dihedrals    string   `json:"dihedrals,omitempty"`
	Impropers    string   `json:"impropers,omitempty"`
	Stride       int      `json:"stride,omitempty"`
	Log          string   `json:"log,omitempty"`
}

func (o *BondedCalculate) Spec() (job.Spec, error) {
	if len(o.Trajectories) == 0 {
		return job.Spec{}, required("bonded_calculate", "trajectories", "")
	}
	if err := required("bonded_calculate", "topology", o.Topology); err != nil {
		return job.Spec{}, err
	}
	s := job.Spec{
		Name:       "bonded_calculate_job",
		Executable: "bonded_distribution",
		Args: []cmdline.Arg{
			cmdline.Word("calculate"),
			cmdline.Files("-t", o.Trajectories...),
			cmdline.File("--topo", o.Topology),
			cmdline.Bool("--unwrap", o.Unwrap),
			cmdline.File("-b", o.Bonds),
			cmdline.File("-a", o.Angles),
			cmdline.File("-d", o.Dihedrals),
			cmdline.File("-i", o.Impropers),
			cmdline.Int("--stride", o.Stride),
			cmdline.Value("--log", o.Log),
		},
		Inputs: inputs(append(append([]string{}, o.Trajectories...), o.Topology, o.Bonds, o.Angles, o.Dihedrals, o.Impropers)...),
	}
	return withLog(s, o.Log), nil
}

// TorsionMaps drives 2D_torsion_density_maps.
type TorsionMaps struct {
	Trajectories []string  `json:"trajectories"`
	Topology     string    `json:"topology"`
	PhiPsi       [2]string `json:"phipsi"`
	Log          string    `json:"log,omitempty"`
	Stride       int       `json:"stride,omitempty"`
	Unwrap       bool      `json:"unwrap,omitempty"`
}

func (o *TorsionMaps) Spec() (job.Spec, error) {
	if len(o.Trajectories) == 0 {
		return job.Spec{}, required("torsion_maps", "trajectories", "")
	}
	if err := required("torsion_maps", "topology", o.Topology); err != nil {
		return job.Spec{}, err
	}
	if o.PhiPsi[0] == "" || o.PhiPsi[1] == "" {
		return job.Spec{}, required("torsion_maps", "phipsi", "")
	}
	s := job.Spec{
		Name:       "torsion_maps_job",
		Executable: "2D_torsion_density_maps",
		Args: []cmdline.Arg{
			cmdline.Files("-t", o.Trajectories...),
			cmdline.File("--topo", o.Topology),
			cmdline.Files("--phipsi", o.PhiPsi[:]...),
			cmdline.Bool("--unwrap", o.Unwrap),
			cmdline.Value("--log", o.Log),
			cmdline.Int("--stride", o.Stride),
		},
		Inputs: inputs(append(append([]string{}, o.Trajectories...), o.Topology, o.PhiPsi[0], o.PhiPsi[1])...),
	}
	return withLog(s, o.Log), nil
}

// PairDistribution drives pair_distribution. The topology flag follows the
// file type: --tpr for GROMACS run inputs, --psf for PSF files.
type PairDistribution struct {
	Trajectories []string `json:"trajectories"`
	Topology     string   `json:"topology"`
	Log          string   `json:"log,omitempty"`
	Stride       int      `json:"stride,omitempty"`
	Sets         string   `json:"sets,omitempty"`
	DR           float64  `json:"dr,omitempty"`
}

func (o *PairDistribution) Spec() (job.Spec, error) {
	if len(o.Trajectories) == 0 {
		return job.Spec{}, required("pair_distribution", "trajectories", "")
	}
	var tpr, psf string
	switch {
	case strings.HasSuffix(o.Topology, ".tpr"):
		tpr = o.Topology
	case strings.HasSuffix(o.Topology, ".psf"):
		psf = o.Topology
	}
	s := job.Spec{
		Name:       "pair_distribution_job",
		Executable: "pair_distribution",
		Args: []cmdline.Arg{
			cmdline.Files("-t", o.Trajectories...),
			cmdline.File("--tpr", tpr),
			cmdline.File("--psf", psf),
			cmdline.Value("--log", o.Log),
			cmdline.Int("--stride", o.Stride),
			cmdline.File("--sets", o.Sets),
			cmdline.Float("--dr", o.DR),
		},
		Inputs: inputs(append(append([]string{}, o.Trajectories...), tpr, psf, o.Sets)...),
	}
	return withLog(s, o.Log), nil
}

// NeighborSphere drives neighbor_sphere.
type NeighborSphere struct {
	Coordinates string `json:"coordinates"`
	Topology    string `json:"topology,omitempty"`
	Log         string `json:"log,omitempty"`
}

func (o *NeighborSphere) Spec() (job.Spec, error) {
	if err := required("neighbor_sphere", "coordinates", o.Coordinates); err != nil {
		return job.Spec{}, err
	}
	s := job.Spec{
		Name:       "neighbor_sphere_job",
		Executable: "neighbor_sphere",
		Args: []cmdline.Arg{
			cmdline.File("-c", o.Coordinates),
			cmdline.File("-t", o.Topology),
			cmdline.Value("--log", o.Log),
		},
		Inputs:  inputs(o.Coordinates, o.Topology),
		Outputs: outputs("coords_com.pdb", "vmd_com.tcl", "wrapped.pdb"),
	}
	return withLog(s, o.Log), nil
}

// VotcaIBI drives "votca_analysis ibi".
type VotcaIBI struct {
	Steps     string  `json:"steps"`
	BeginStep int     `json:"begin_step,omitempty"`
	TempK     float64 `json:"temp_k,omitempty"`
	EndStep   int     `json:"end_step,omitempty"`
	TmpDir    bool    `json:"tmpdir,omitempty"`
	Log       string  `json:"log,omitempty"`
	Press     float64 `json:"press,omitempty"`
}

func (o *VotcaIBI) Spec() (job.Spec, error) {
	if err := required("votca_ibi", "steps", o.Steps); err != nil {
		return job.Spec{}, err
	}
	s := job.Spec{
		Name:       "votca_ibi_job",
		Executable: "votca_analysis",
		Args: []cmdline.Arg{
			cmdline.Word("ibi"),
			cmdline.Value("-p", o.Steps),
			cmdline.Int("-b", o.BeginStep),
			cmdline.Float("-t", o.TempK),
			cmdline.Int("-e", o.EndStep),
			cmdline.Switch("--tmpdir", o.TmpDir),
			cmdline.Value("--log", o.Log),
			cmdline.Float("--press", o.Press),
		},
	}
	return withLog(s, o.Log), nil
}
