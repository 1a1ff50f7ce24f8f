package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoKnownHosts is returned when host keys cannot be verified because no
// known_hosts file is configured.
var ErrNoKnownHosts = errors.New("no known_hosts file configured to verify the host key")

// SSHConfig holds connection settings shared by every SSH fetch.
type SSHConfig struct {
	// Port defaults to 22.
	Port int
	// Timeout bounds the TCP connect and handshake. Defaults to 30s.
	Timeout time.Duration
	// IdentityFiles are private keys to offer, tried in order. Missing
	// files are skipped.
	IdentityFiles []string
	// KnownHostsFile verifies the server key. It must exist unless
	// InsecureIgnoreHostKey is set.
	KnownHostsFile string
	// InsecureIgnoreHostKey accepts any server key. Fetched scripts are
	// executed, so this is for trusted networks only.
	InsecureIgnoreHostKey bool
	// DefaultUser is used when a request names no user.
	DefaultUser string
}

// DefaultSSHConfig returns the usual identity and known_hosts locations.
func DefaultSSHConfig() SSHConfig {
	home, _ := os.UserHomeDir()
	return SSHConfig{
		Port:    22,
		Timeout: 30 * time.Second,
		IdentityFiles: []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		},
		KnownHostsFile: filepath.Join(home, ".ssh", "known_hosts"),
		DefaultUser:    currentUser(),
	}
}

// SSH fetches scripts from a remote host by running cat over a session.
type SSH struct {
	host string
	user string
	cfg  SSHConfig
}

// NewSSH creates a fetcher for host. An empty user falls back to
// cfg.DefaultUser.
func NewSSH(host, user string, cfg SSHConfig) *SSH {
	if user == "" {
		user = cfg.DefaultUser
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SSH{host: host, user: user, cfg: cfg}
}

// Address returns user@host:port.
func (s *SSH) Address() string {
	return fmt.Sprintf("%s@%s", s.user, s.addr())
}

func (s *SSH) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.cfg.Port))
}

// Fetch downloads sourcePath from the remote host to targetPath.
func (s *SSH) Fetch(ctx context.Context, sourcePath, targetPath string) error {
	client, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("unable to retrieve install script %s:%s: %w", s.Address(), sourcePath, err)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run("cat " + shellquote.Join(sourcePath))
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return ctx.Err()
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return fmt.Errorf("unable to retrieve install script %s:%s: exit status %d: %s",
					s.Address(), sourcePath, exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
			}
			return err
		}
	}

	return writeFile(targetPath, &stdout, 0o755)
}

func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, err
	}
	hostKeys, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         s.cfg.Timeout,
	}

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", s.addr(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, s.addr(), config)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (s *SSH) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	var signers []ssh.Signer
	for _, path := range s.cfg.IdentityFiles {
		signer, err := loadPrivateKey(path)
		if err == nil {
			signers = append(signers, signer)
		}
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		if conn, err := net.Dial("unix", socket); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication methods available")
	}
	return methods, nil
}

func (s *SSH) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly configured
	}
	if s.cfg.KnownHostsFile == "" {
		return nil, ErrNoKnownHosts
	}
	cb, err := knownhosts.New(s.cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read known hosts %s: %w", s.cfg.KnownHostsFile, err)
	}
	return cb, nil
}

func loadPrivateKey(path string) (ssh.Signer, error) {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

var _ ports.ScriptFetcher = (*SSH)(nil)
