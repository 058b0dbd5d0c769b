package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Session is an authenticated connection to one host, used for a single job.
type Session struct {
	addr string
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *Session) Addr() string { return s.addr }

// Run executes cmd in one round trip and returns its decoded stdout and
// stderr. A non-zero exit status is not an error: the tool's complaint is
// in stderr. The error is reserved for transport failures and ctx.
func (s *Session) Run(ctx context.Context, cmd string) (string, string, error) {
	sess, err := s.ssh.NewSession()
	if err != nil {
		return "", "", err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		// Best-effort terminate session.
		_ = sess.Signal(ssh.SIGKILL)
		return "", "", ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			err = nil
		}
		return stdout.String(), stderr.String(), err
	}
}

// Upload copies a local file to remote.
func (s *Session) Upload(local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := s.sftp.Create(remote)
	if err != nil {
		return fmt.Errorf("create %s: %w", remote, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("upload %s: %w", remote, err)
	}
	return dst.Close()
}

// Exists reports whether remote names an existing path.
func (s *Session) Exists(remote string) (bool, error) {
	_, err := s.sftp.Stat(remote)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// IsDir reports whether remote is an existing directory.
func (s *Session) IsDir(remote string) (bool, error) {
	st, err := s.sftp.Stat(remote)
	switch {
	case err == nil:
		return st.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// Download copies remote into the local file path.
func (s *Session) Download(remote, local string) error {
	src, err := s.sftp.Open(remote)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(local)
		return fmt.Errorf("download %s: %w", remote, err)
	}
	return dst.Close()
}

// List returns the names of the regular files in dir.
func (s *Session) List(dir string) ([]string, error) {
	entries, err := s.sftp.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Mode().IsRegular() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (s *Session) Remove(remote string) error {
	return s.sftp.Remove(remote)
}

// Close releases the SFTP subsystem and the connection.
func (s *Session) Close() error {
	ferr := s.sftp.Close()
	if err := s.ssh.Close(); err != nil {
		return err
	}
	return ferr
}
