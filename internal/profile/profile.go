package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Profile holds how to reach one compute host. Only the path of the
// private key is kept, never the key itself.
type Profile struct {
	Host           string `json:"Name Server*"`
	Username       string `json:"Username*"`
	KeyPath        string `json:"Key SSH file path*"`
	VirtualenvPath string `json:"Virtual environment path*"`
	WorkDir        string `json:"Working directory*"`
}

var ErrIncomplete = errors.New("profile: incomplete")

// Validate checks that every field is set and the key file exists locally.
func (p Profile) Validate() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"host", p.Host},
		{"username", p.Username},
		{"key path", p.KeyPath},
		{"virtualenv path", p.VirtualenvPath},
		{"working directory", p.WorkDir},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	st, err := os.Stat(p.KeyPath)
	if err != nil {
		return fmt.Errorf("profile: key file: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("profile: key file %s is a directory", p.KeyPath)
	}
	return nil
}

// Decode reads a profile document.
func Decode(r io.Reader) (Profile, error) {
	var p Profile
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("json decode: %w", err)
	}
	return p, nil
}

// Encode writes the profile document with 4-space indentation.
func (p Profile) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(p)
}

func Load(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Save writes p to path, adding a .json extension when missing, and
// returns the path written.
func (p Profile) Save(path string) (string, error) {
	if path == "" {
		return "", errors.New("profile: empty file name")
	}
	path = EnsureJSONExt(path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("write profile: %w", err)
	}
	if err := p.Encode(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write profile: %w", err)
	}
	return path, f.Close()
}

func EnsureJSONExt(name string) string {
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return name
}
