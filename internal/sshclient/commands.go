package sshclient

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tastythames/polyrun/internal/cmdline"
)

// Helper commands run on the remote host besides the tools themselves.

// CmdTestFile prints "exists" when path is a regular file.
func CmdTestFile(path string) string {
	return fmt.Sprintf("test -f %s && echo exists || echo 'not exists'", cmdline.Quote(path))
}

// CmdTestDir prints "exists" when path is a directory.
func CmdTestDir(path string) string {
	return fmt.Sprintf("if [ -d %s ]; then echo exists; else echo 'not exists'; fi", cmdline.Quote(path))
}

// CmdFindRecent searches the home directory for files called name modified
// within window.
func CmdFindRecent(name string, window time.Duration) string {
	mins := int(math.Ceil(window.Minutes()))
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("find $HOME -name %s -mmin -%d 2>/dev/null", cmdline.Quote(name), mins)
}

// ParseExists interprets the output of CmdTestFile and CmdTestDir.
func ParseExists(out string) bool {
	return strings.TrimSpace(out) == "exists"
}

// ParseFindResults returns the non-empty lines printed by find.
func ParseFindResults(out string) []string {
	var paths []string
	for _, ln := range strings.Split(out, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			paths = append(paths, ln)
		}
	}
	return paths
}
