package runner

import (
	"context"
	"log"

	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/sshclient"
)

// ProfileReport is the outcome of checking a profile against its host.
type ProfileReport struct {
	Reachable  bool `json:"reachable"`
	Virtualenv bool `json:"virtualenv"`
	WorkDir    bool `json:"work_dir"`
}

func (r ProfileReport) OK() bool { return r.Reachable && r.Virtualenv && r.WorkDir }

// CheckProfile connects with p and verifies that its activation script
// and working directory exist on the host. An unreachable host yields a
// report with Reachable unset and the connect error.
func (r *Runner) CheckProfile(ctx context.Context, p profile.Profile) (ProfileReport, error) {
	var rep ProfileReport
	if err := p.Validate(); err != nil {
		return rep, err
	}
	if err := r.dialer.Probe(ctx, p); err != nil {
		return rep, err
	}
	sess, err := r.dialer.Dial(ctx, p)
	if err != nil {
		return rep, err
	}
	defer sess.Close()
	rep.Reachable = true

	out, _, err := sess.Run(ctx, sshclient.CmdTestFile(p.VirtualenvPath))
	if err != nil {
		return rep, err
	}
	rep.Virtualenv = sshclient.ParseExists(out)

	out, _, err = sess.Run(ctx, sshclient.CmdTestDir(p.WorkDir))
	if err != nil {
		return rep, err
	}
	rep.WorkDir = sshclient.ParseExists(out)

	log.Printf("runner: profile %s@%s: virtualenv=%t workdir=%t", p.Username, p.Host, rep.Virtualenv, rep.WorkDir)
	return rep, nil
}
