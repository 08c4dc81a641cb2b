package angelshark

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	ossiLogoff  = "clogoff\nt\ny\n"
	termName    = "vt100"
	termCols    = 81
	termRows    = 25
	dialTimeout = 30 * time.Second
)

// sessionMode selects which OSSI terminal mode a session enters, and in turn
// how its reply stream should be interpreted. Modeling this as a small
// descriptor (rather than near-duplicate Run/Manual methods) keeps the SSH
// plumbing in one place; only the term bytes and the caller-side parsing
// differ between the two.
type sessionMode struct {
	termBytes string
}

var (
	modeExecute = sessionMode{termBytes: "ossie\n"}
	modeManual  = sessionMode{termBytes: "ossiem\n"}
)

// sessionStream is the bidirectional byte stream returned by openSession:
// writes go to the SAT's shell stdin, reads come from its stdout, already
// past the prompt-synchronization line.
type sessionStream struct {
	stdin  io.WriteCloser
	stdout *bufio.Reader
	sess   *ssh.Session
	client *ssh.Client
	conn   net.Conn
}

func (s *sessionStream) Write(p []byte) (int, error) { return s.stdin.Write(p) }
func (s *sessionStream) Read(p []byte) (int, error)  { return s.stdout.Read(p) }

func (s *sessionStream) Close() error {
	s.sess.Close()
	s.client.Close()
	return s.conn.Close()
}

// openSession opens a TCP connection to the ACM, performs SSH
// keyboard-interactive authentication, negotiates a vt100 PTY, starts a
// shell, writes the mode's term bytes, and blocks until the SAT's prompt
// line ("t") confirms the OSSI terminal is ready. Every stage is bounded by
// dialTimeout; any failure is wrapped naming the stage that failed.
func (a Acm) openSession(mode sessionMode) (*sessionStream, error) {
	addr := net.JoinHostPort(a.Addr.String(), strconv.Itoa(int(a.port())))

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open TCP stream to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	config := &ssh.ClientConfig{
		User: a.User,
		Auth: []ssh.AuthMethod{
			ssh.KeyboardInteractive(a.answerEveryPrompt),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake or keyboard-interactive authentication failed: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open SSH channel: %w", err)
	}

	if err := sess.RequestPty(termName, termRows, termCols, ssh.TerminalModes{}); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("failed to open PTY on SSH channel: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("failed to open stdin on SSH channel: %w", err)
	}
	stdoutPipe, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("failed to open stdout on SSH channel: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("failed to open shell on SSH channel: %w", err)
	}

	if _, err := stdin.Write([]byte(mode.termBytes)); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("failed to send OSSI term: %w", err)
	}

	stdout := bufio.NewReader(stdoutPipe)
	if !waitForPrompt(stdout) {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("never reached OSSI term prompt")
	}

	return &sessionStream{stdin: stdin, stdout: stdout, sess: sess, client: client, conn: conn}, nil
}

// waitForPrompt reads lines until one is exactly "t", discarding everything
// up to and including it. Using a bufio.Reader (rather than bufio.Scanner)
// here matters: any bytes buffered past the prompt line stay available to
// later Reads through the same reader instead of being silently dropped.
func waitForPrompt(r *bufio.Reader) bool {
	for {
		line, err := r.ReadString('\n')
		trimmed := trimNewline(line)
		if trimmed == "t" {
			return true
		}
		if err != nil {
			return false
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// answerEveryPrompt implements ssh.KeyboardInteractiveChallenge, answering
// every prompt the ACM issues with the configured password (password-based
// auth only; no public-key support).
func (a Acm) answerEveryPrompt(name, instruction string, questions []string, echos []bool) ([]string, error) {
	answers := make([]string, len(questions))
	for i := range answers {
		answers[i] = a.Pass
	}
	return answers, nil
}
