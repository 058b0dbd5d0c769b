package sshclient

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Timeout bounds dialing and the SSH handshake of a working session.
	Timeout time.Duration
	// ProbeTimeout bounds the trial connection made before a job starts.
	ProbeTimeout time.Duration
	// Port is used when the profile host carries no port.
	Port int
	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string
}

func LoadConfig() Config {
	timeout := 10 * time.Second
	if v := os.Getenv("SSH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	probe := 2 * time.Second
	if v := os.Getenv("SSH_PROBE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			probe = time.Duration(n) * time.Millisecond
		}
	}

	port := 22
	if v := os.Getenv("SSH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			port = n
		}
	}

	return Config{
		Timeout:        timeout,
		ProbeTimeout:   probe,
		Port:           port,
		KnownHostsFile: os.Getenv("SSH_KNOWN_HOSTS"),
	}
}
