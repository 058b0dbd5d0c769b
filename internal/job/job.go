package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tastythames/polyrun/internal/cmdline"
)

// Output is one expected output file, named relative to the working directory.
type Output struct {
	Name string `json:"name"`
	// Log outputs are searched for in the remote home directory when
	// missing from the working directory.
	Log bool `json:"log,omitempty"`
}

// Match selects extra outputs by name from one listing of the working directory.
type Match struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

func (m Match) Matches(name string) bool {
	return strings.HasPrefix(name, m.Prefix) && strings.HasSuffix(name, m.Suffix)
}

// Spec describes one invocation of an external tool. It is built once per
// run and not modified after submission.
type Spec struct {
	// Name is used for the batch job name and its log files.
	Name       string
	Executable string
	Args       []cmdline.Arg
	// Inputs are local files staged under their base names.
	Inputs  []string
	Outputs []Output
	Collect []Match
	// LogFile is the output rendered back to the user after the run.
	LogFile string
}

var (
	ErrNoExecutable = errors.New("job: executable is empty")
	// ErrOutputName is returned for output names that are not a single
	// file name inside the working directory.
	ErrOutputName = errors.New("job: output name must be a plain file name")
)

// Validate checks that s can be staged.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Executable) == "" {
		return ErrNoExecutable
	}
	for _, o := range s.Outputs {
		if !LocalName(o.Name) {
			return fmt.Errorf("%w: %q", ErrOutputName, o.Name)
		}
	}
	for _, m := range s.Collect {
		if strings.ContainsAny(m.Prefix+m.Suffix, `/\`) {
			return fmt.Errorf("%w: pattern %q", ErrOutputName, m.Prefix+"*"+m.Suffix)
		}
	}
	for _, in := range s.Inputs {
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("job: input %s: %w", in, err)
		}
		st, err := f.Stat()
		f.Close()
		if err != nil {
			return fmt.Errorf("job: input %s: %w", in, err)
		}
		if st.IsDir() {
			return fmt.Errorf("job: input %s is a directory", in)
		}
	}
	return nil
}

// Command renders the tool command line with inputs resolved by resolve.
func (s Spec) Command(resolve cmdline.Resolver) string {
	return cmdline.Line(s.Executable, s.Args, resolve)
}

// Tokens returns the tool arguments with inputs resolved by resolve.
func (s Spec) Tokens(resolve cmdline.Resolver) []string {
	return cmdline.Tokens(s.Args, resolve)
}

// OutputNames lists expected output names in order.
func (s Spec) OutputNames() []string {
	out := make([]string, 0, len(s.Outputs))
	for _, o := range s.Outputs {
		out = append(out, o.Name)
	}
	return out
}

// LocalName reports whether name is one file name with no directory part,
// so joining it to a directory cannot leave that directory.
func LocalName(name string) bool {
	return filepath.IsLocal(name) && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

// StagedName is the name an input gets in the working directory.
// Directory structure is not preserved.
func StagedName(local string) string {
	return filepath.Base(local)
}
