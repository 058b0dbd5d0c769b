package runner

import (
	"context"
	"log"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/tastythames/polyrun/internal/job"
	"github.com/tastythames/polyrun/internal/sshclient"
)

// fetch downloads each expected output from workDir into outDir. Files
// matching collect are added from a listing of workDir. Outputs flagged
// as logs are searched for under the remote home when absent.
func (r *Runner) fetch(ctx context.Context, sess Remote, workDir string, outputs []job.Output, collect []job.Match, outDir string, opts Options) (retrieved, missing []string) {
	outputs = withCollected(sess, workDir, outputs, collect)

	seen := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		if seen[o.Name] {
			continue
		}
		seen[o.Name] = true
		if !job.LocalName(o.Name) {
			log.Printf("runner: output %q outside the working directory, skipped", o.Name)
			missing = append(missing, o.Name)
			continue
		}

		local := filepath.Join(outDir, path.Base(o.Name))
		remote := path.Join(workDir, o.Name)
		if download(sess, remote, local) {
			retrieved = append(retrieved, o.Name)
			continue
		}
		if o.Log && !opts.NoLogFallback && fromHome(ctx, sess, o.Name, local, opts.LogWindow) {
			retrieved = append(retrieved, o.Name)
			continue
		}
		log.Printf("runner: output %s not found", o.Name)
		missing = append(missing, o.Name)
	}
	return retrieved, missing
}

func withCollected(sess Remote, workDir string, outputs []job.Output, collect []job.Match) []job.Output {
	if len(collect) == 0 {
		return outputs
	}
	names, err := sess.List(workDir)
	if err != nil {
		log.Printf("runner: list %s: %v", workDir, err)
		return outputs
	}
	sort.Strings(names)
	out := append([]job.Output{}, outputs...)
	for _, n := range names {
		for _, m := range collect {
			if m.Matches(n) {
				out = append(out, job.Output{Name: n})
				break
			}
		}
	}
	return out
}

func download(sess Remote, remote, local string) bool {
	ok, err := sess.Exists(remote)
	if err != nil {
		log.Printf("runner: stat %s: %v", remote, err)
		return false
	}
	if !ok {
		return false
	}
	if err := sess.Download(remote, local); err != nil {
		log.Printf("runner: download %s: %v", remote, err)
		return false
	}
	return true
}

// fromHome takes the first recently modified file called name under the
// remote home directory.
func fromHome(ctx context.Context, sess Remote, name, local string, window time.Duration) bool {
	if window <= 0 {
		window = DefaultLogWindow
	}
	stdout, _, err := sess.Run(ctx, sshclient.CmdFindRecent(path.Base(name), window))
	if err != nil {
		log.Printf("runner: search home for %s: %v", name, err)
		return false
	}
	found := sshclient.ParseFindResults(stdout)
	if len(found) == 0 || !download(sess, found[0], local) {
		return false
	}
	log.Printf("runner: %s recovered from %s", name, found[0])
	return true
}
