package source

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func TestLocal_Fetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "install.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/bash\n"), 0o755))
	target := filepath.Join(dir, "scripts", "PLUGIN", "1.0", "install.sh")

	require.NoError(t, NewLocal().Fetch(context.Background(), src, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\n", string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// Replaces an existing copy.
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/bash\necho v2\n"), 0o755))
	require.NoError(t, NewLocal().Fetch(context.Background(), src, target))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "v2")
}

func TestLocal_Fetch_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewLocal()

	assert.Error(t, l.Fetch(context.Background(), filepath.Join(dir, "missing.sh"), filepath.Join(dir, "out.sh")))
	assert.Error(t, l.Fetch(context.Background(), dir, filepath.Join(dir, "out.sh")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Fetch(ctx, "x", "y"), context.Canceled)
}

type recordingFetcher struct {
	mu    sync.Mutex
	calls []string
}

func (f *recordingFetcher) Fetch(_ context.Context, src, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, src)
	return nil
}

func TestRouter(t *testing.T) {
	t.Parallel()

	local := &recordingFetcher{}
	remote := &recordingFetcher{}
	var remoteHost, remoteUser string
	r := NewRouterWith(local, func(host, user string) ports.ScriptFetcher {
		remoteHost, remoteUser = host, user
		return remote
	})
	ctx := context.Background()

	require.NoError(t, r.Fetch(ctx, &artifact.Request{ScriptInstallPath: "/local.sh"}, "/t"))
	require.NoError(t, r.Fetch(ctx, &artifact.Request{ScriptInstallPath: "/remote.sh", SSHHost: "web", SSHUser: "gw"}, "/t"))

	assert.Equal(t, []string{"/local.sh"}, local.calls)
	assert.Equal(t, []string{"/remote.sh"}, remote.calls)
	assert.Equal(t, "web", remoteHost)
	assert.Equal(t, "gw", remoteUser)

	assert.Error(t, r.Fetch(ctx, nil, "/t"))
	assert.Error(t, r.Fetch(ctx, &artifact.Request{}, "/t"))
}

func TestNewSSH_Defaults(t *testing.T) {
	t.Parallel()

	s := NewSSH("web.example.org", "", SSHConfig{DefaultUser: "gobyweb"})
	assert.Equal(t, "gobyweb@web.example.org:22", s.Address())
	assert.Equal(t, 30*time.Second, s.cfg.Timeout)
}

func TestSSH_NoAuthMethods(t *testing.T) {
	t.Parallel()

	s := NewSSH("127.0.0.1", "u", SSHConfig{IdentityFiles: []string{filepath.Join(t.TempDir(), "none")}})
	if os.Getenv("SSH_AUTH_SOCK") != "" {
		t.Skip("ssh agent available")
	}
	err := s.Fetch(context.Background(), "/x", filepath.Join(t.TempDir(), "x"))
	assert.ErrorContains(t, err, "no authentication methods")
}

// sshServer serves "cat <path>" from an in-memory file set.
type sshServer struct {
	addr    *net.TCPAddr
	keyPath string
	hostKey ssh.PublicKey
}

// knownHosts writes a known_hosts file trusting the server's host key.
func (s *sshServer) knownHosts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{s.addr.String()}, s.hostKey)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))
	return path
}

func startSSHServer(t *testing.T, files map[string]string) *sshServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	authorized, err := ssh.NewPublicKey(clientPub)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(clientPriv, "test")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unauthorized")
		},
	}
	config.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, config, files)
		}
	}()

	return &sshServer{addr: ln.Addr().(*net.TCPAddr), keyPath: keyPath, hostKey: hostSigner.PublicKey()}
}

func serveConn(conn net.Conn, config *ssh.ServerConfig, files map[string]string) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				status := uint32(0)
				args, err := shellquote.Split(payload.Command)
				content, ok := "", false
				if err == nil && len(args) == 2 && args[0] == "cat" {
					content, ok = files[args[1]]
				}
				if ok {
					_, _ = ch.Write([]byte(content))
				} else {
					status = 1
					_, _ = ch.Stderr().Write([]byte("cat: no such file\n"))
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				_ = ch.Close()
				return
			}
		}()
	}
}

func TestSSH_Fetch(t *testing.T) {
	t.Parallel()

	srv := startSSHServer(t, map[string]string{
		"/srv/plugins/BWA/install.sh": "#!/bin/bash\nfunction plugin_install_artifact() { :; }\n",
	})
	cfg := SSHConfig{
		Port:           srv.addr.Port,
		Timeout:        5 * time.Second,
		IdentityFiles:  []string{srv.keyPath},
		KnownHostsFile: srv.knownHosts(t),
	}
	s := NewSSH("127.0.0.1", "gobyweb", cfg)
	assert.Equal(t, "gobyweb@127.0.0.1:"+strconv.Itoa(srv.addr.Port), s.Address())

	target := filepath.Join(t.TempDir(), "scripts", "BWA", "1.0", "install.sh")
	require.NoError(t, s.Fetch(context.Background(), "/srv/plugins/BWA/install.sh", target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "plugin_install_artifact")

	err = s.Fetch(context.Background(), "/srv/plugins/MISSING/install.sh", filepath.Join(t.TempDir(), "x.sh"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Contains(t, err.Error(), "no such file")
}

func TestSSH_Fetch_UnknownHostKey(t *testing.T) {
	t.Parallel()

	srv := startSSHServer(t, map[string]string{"/x.sh": "x"})
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts, nil, 0o600))

	s := NewSSH("127.0.0.1", "u", SSHConfig{
		Port:           srv.addr.Port,
		Timeout:        5 * time.Second,
		IdentityFiles:  []string{srv.keyPath},
		KnownHostsFile: knownHosts,
	})
	err := s.Fetch(context.Background(), "/x.sh", filepath.Join(t.TempDir(), "x.sh"))
	assert.ErrorContains(t, err, "handshake failed")
}

func TestSSH_Fetch_HostKeyVerification(t *testing.T) {
	t.Parallel()

	srv := startSSHServer(t, map[string]string{"/x.sh": "echo x"})
	base := SSHConfig{
		Port:          srv.addr.Port,
		Timeout:       5 * time.Second,
		IdentityFiles: []string{srv.keyPath},
	}

	tests := []struct {
		name    string
		mutate  func(*SSHConfig)
		wantErr error
	}{
		{
			name:    "missing known_hosts file",
			mutate:  func(c *SSHConfig) { c.KnownHostsFile = filepath.Join(t.TempDir(), "known_hosts") },
			wantErr: fs.ErrNotExist,
		},
		{
			name:    "no known_hosts configured",
			mutate:  func(c *SSHConfig) {},
			wantErr: ErrNoKnownHosts,
		},
		{
			name: "insecure mode ignores a missing file",
			mutate: func(c *SSHConfig) {
				c.KnownHostsFile = filepath.Join(t.TempDir(), "known_hosts")
				c.InsecureIgnoreHostKey = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			tt.mutate(&cfg)
			target := filepath.Join(t.TempDir(), "x.sh")
			err := NewSSH("127.0.0.1", "u", cfg).Fetch(context.Background(), "/x.sh", target)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.NoFileExists(t, target)
				return
			}
			require.NoError(t, err)
			assert.FileExists(t, target)
		})
	}
}
