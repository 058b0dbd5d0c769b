package sshclient

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tastythames/polyrun/internal/profile"
)

// ConnectError reports a failure to reach or authenticate against a host.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string { return "ssh connect " + e.Host + ": " + e.Err.Error() }

func (e *ConnectError) Unwrap() error { return e.Err }

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	return &Client{cfg: cfg}
}

// Dial opens a working session: one SSH connection plus its SFTP subsystem.
// The caller must Close the session.
func (c *Client) Dial(ctx context.Context, p profile.Profile) (*Session, error) {
	addr := c.addr(p.Host)
	cli, err := c.connect(ctx, p, addr, c.cfg.Timeout)
	if err != nil {
		return nil, &ConnectError{Host: addr, Err: err}
	}

	fs, err := sftp.NewClient(cli)
	if err != nil {
		cli.Close()
		return nil, &ConnectError{Host: addr, Err: fmt.Errorf("sftp: %w", err)}
	}
	return &Session{addr: addr, ssh: cli, sftp: fs}, nil
}

// Probe opens and immediately closes a connection with the short probe
// timeout. It only tells whether host, user and key work together.
func (c *Client) Probe(ctx context.Context, p profile.Profile) error {
	addr := c.addr(p.Host)
	cli, err := c.connect(ctx, p, addr, c.cfg.ProbeTimeout)
	if err != nil {
		return &ConnectError{Host: addr, Err: err}
	}
	return cli.Close()
}

func (c *Client) addr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
}

func (c *Client) clientConfig(p profile.Profile, timeout time.Duration) (*ssh.ClientConfig, error) {
	if p.Username == "" {
		return nil, fmt.Errorf("ssh user is empty")
	}
	pem, err := os.ReadFile(p.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}

	// HostKey policy: known_hosts when configured, accept any key otherwise.
	hk := ssh.InsecureIgnoreHostKey()
	if c.cfg.KnownHostsFile != "" {
		hk, err = knownhosts.New(c.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            p.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hk,
		Timeout:         timeout,
	}, nil
}

func (c *Client) connect(ctx context.Context, p profile.Profile, addr string, timeout time.Duration) (*ssh.Client, error) {
	sshCfg, err := c.clientConfig(p, timeout)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// The handshake can hang without a deadline. The deadline is lifted
	// once the connection is up since jobs may run for hours.
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(cconn, chans, reqs), nil
}
