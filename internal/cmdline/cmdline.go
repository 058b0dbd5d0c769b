// Package cmdline folds optional tool arguments into a command line.
package cmdline

import (
	"strconv"
	"strings"
)

// Arg is one flag of an external tool together with its values.
// An Arg that is not present renders to nothing.
type Arg struct {
	Flag    string
	Values  []string
	Present bool

	// File marks Values as local input paths that must be rewritten
	// to their staged location before rendering.
	File bool
}

// Value is present when v is non-empty.
func Value(flag, v string) Arg {
	return Arg{Flag: flag, Values: []string{v}, Present: v != ""}
}

// Values is present only when every value is non-empty, e.g. the three
// box lengths of a replicated cell.
func Values(flag string, vs ...string) Arg {
	present := len(vs) > 0
	for _, v := range vs {
		if v == "" {
			present = false
			break
		}
	}
	return Arg{Flag: flag, Values: vs, Present: present}
}

// Switch renders the bare flag when on.
func Switch(flag string, on bool) Arg {
	return Arg{Flag: flag, Present: on}
}

// Int is present when n is non-zero.
func Int(flag string, n int) Arg {
	return Arg{Flag: flag, Values: []string{strconv.Itoa(n)}, Present: n != 0}
}

// Float is present when f is non-zero.
func Float(flag string, f float64) Arg {
	return Arg{Flag: flag, Values: []string{strconv.FormatFloat(f, 'g', -1, 64)}, Present: f != 0}
}

// Bool is always present and renders True or False.
func Bool(flag string, b bool) Arg {
	v := "False"
	if b {
		v = "True"
	}
	return Arg{Flag: flag, Values: []string{v}, Present: true}
}

// Word is a bare token such as a subcommand name.
func Word(w string) Arg {
	return Arg{Flag: w, Present: w != ""}
}

// File is present when path is non-empty; the path is resolved at render time.
func File(flag, path string) Arg {
	a := Value(flag, path)
	a.File = true
	return a
}

// Files is present when at least one path is given and none is empty.
func Files(flag string, paths ...string) Arg {
	a := Values(flag, paths...)
	a.File = true
	return a
}

// Resolver maps a local input path to the path the tool will see.
type Resolver func(local string) string

// Tokens folds args into a token list. Absent args are dropped; present
// args keep their order. A nil resolver leaves file paths untouched.
func Tokens(args []Arg, resolve Resolver) []string {
	out := make([]string, 0, len(args)*2)
	for _, a := range args {
		if !a.Present {
			continue
		}
		out = append(out, a.Flag)
		for _, v := range a.Values {
			if a.File && resolve != nil {
				v = resolve(v)
			}
			out = append(out, v)
		}
	}
	return out
}

// Line renders exe followed by the folded args as one shell command line.
func Line(exe string, args []Arg, resolve Resolver) string {
	toks := append([]string{exe}, Tokens(args, resolve)...)
	for i, t := range toks {
		toks[i] = Quote(t)
	}
	return strings.Join(toks, " ")
}

// Quote single-quotes s for a POSIX shell unless it only holds safe characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, unsafe) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
