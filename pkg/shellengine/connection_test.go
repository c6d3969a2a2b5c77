package shellengine

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
)

// testSSHServer is a minimal in-process SSH server accepting any password
// or no auth at all and answering every exec request with "ok\n" and exit
// status 0, so Connection/Executor tests don't need a live host.
type testSSHServer struct {
	listener net.Listener
	addr     string
	signer   ssh.Signer
}

func startTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	private, err := ssh.NewSignerFromKey(rsaKey)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &testSSHServer{listener: ln, addr: ln.Addr().String(), signer: private}
	go srv.serve(t)
	return srv
}

func (s *testSSHServer) serve(t *testing.T) {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(t, nConn)
	}
}

func (s *testSSHServer) handleConn(t *testing.T, nConn net.Conn) {
	config := &ssh.ServerConfig{
		NoClientAuth: true,
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(s.signer)

	sshConn, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer channel.Close()
			for req := range requests {
				switch req.Type {
				case "exec":
					channel.Write([]byte("ok\n"))
					req.Reply(true, nil)
					channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
					return
				case "shell":
					req.Reply(true, nil)
				case "pty-req":
					req.Reply(true, nil)
				default:
					req.Reply(false, nil)
				}
			}
		}()
	}
}

func (s *testSSHServer) close() { s.listener.Close() }

func (s *testSSHServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

type noopSessionTransitioner struct{}

func (noopSessionTransitioner) Transition(ctx context.Context, id string, to models.SessionState, reason string) error {
	return nil
}

type collectingPublisher struct {
	events []events.Event
}

func (p *collectingPublisher) Publish(ctx context.Context, ev events.Event) {
	p.events = append(p.events, ev)
}

func TestConnection_ConnectSucceedsAgainstTestServer(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	bus := &collectingPublisher{}
	conn := NewConnection("sess-1", "asset-1", host, port, noopSessionTransitioner{}, bus)

	err := conn.Connect(context.Background(), models.CredentialBundle{Username: "root", SSHPassword: "irrelevant"})
	require.NoError(t, err)
	assert.True(t, conn.IsConnected())

	var sawConnected bool
	for _, ev := range bus.events {
		if ev.Type == events.EventSSHConnected {
			sawConnected = true
		}
	}
	assert.True(t, sawConnected)

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsConnected())
}

func TestConnection_RunCommandReturnsOutput(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	conn := NewConnection("sess-2", "asset-1", host, port, noopSessionTransitioner{}, nil)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))
	defer conn.Close()

	stdout, _, exitCode, err := conn.RunCommand(context.Background(), "echo hi", 5*time.Second, "")
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "ok\n", stdout)
}

func TestConnection_RunCommandTimesOut(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	conn := NewConnection("sess-3", "asset-1", host, port, noopSessionTransitioner{}, nil)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))
	defer conn.Close()

	_, stderr, exitCode, err := conn.RunCommand(context.Background(), "echo hi", 1*time.Nanosecond, "")
	require.NoError(t, err)
	assert.Equal(t, -1, exitCode)
	assert.Contains(t, stderr, "timed out")
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	conn := NewConnection("sess-4", "asset-1", host, port, noopSessionTransitioner{}, nil)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}
