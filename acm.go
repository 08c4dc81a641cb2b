package angelshark

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the Avaya SAT's standard SSH port.
const DefaultPort = 5022

// Acm holds the credentials and destination for one Communication Manager.
// It is a value type: copy it freely.
type Acm struct {
	Addr net.IP
	Port uint16 // zero means DefaultPort
	User string
	Pass string
}

func (a Acm) port() uint16 {
	if a.Port == 0 {
		return DefaultPort
	}
	return a.Port
}

// String redacts the password, so Acm is always safe to log.
func (a Acm) String() string {
	return fmt.Sprintf("Acm{addr: %s, port: %d, user: %s, pass: ********}", a.Addr, a.port(), a.User)
}

// GoString makes %#v redact the password too.
func (a Acm) GoString() string {
	return a.String()
}

// NamedAcm pairs a job name with its Acm configuration.
type NamedAcm struct {
	Name string
	Acm  Acm
}

// SkippedLogin records a login-file line that could not be parsed and why.
type SkippedLogin struct {
	Line   int
	Text   string
	Reason string
}

// ParseLogins reads `asa.cfg`-format ACM logins:
//
//	<name> <user>:<pass>@<ipv4>[:<port>]
//
// Malformed lines never abort the parse; they are collected in the second
// return value with the reason they were skipped, so callers that don't
// care about diagnostics can simply ignore it.
func ParseLogins(r io.Reader) ([]NamedAcm, []SkippedLogin, error) {
	var (
		acms    []NamedAcm
		skipped []SkippedLogin
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		name, config, ok := strings.Cut(line, " ")
		if !ok {
			skipped = append(skipped, SkippedLogin{Line: lineNo, Text: line, Reason: "missing space between name and login"})
			continue
		}

		creds, dest, ok := strings.Cut(config, "@")
		if !ok {
			skipped = append(skipped, SkippedLogin{Line: lineNo, Text: line, Reason: "missing '@' between credentials and address"})
			continue
		}

		user, pass, ok := strings.Cut(creds, ":")
		if !ok {
			skipped = append(skipped, SkippedLogin{Line: lineNo, Text: line, Reason: "missing ':' between user and pass"})
			continue
		}

		var (
			addrStr string
			portStr string
		)
		if addr, port, ok := strings.Cut(dest, ":"); ok {
			addrStr, portStr = addr, port
		} else {
			addrStr = dest
		}

		ip := net.ParseIP(addrStr).To4()
		if ip == nil {
			skipped = append(skipped, SkippedLogin{Line: lineNo, Text: line, Reason: "failed to parse ACM IP address"})
			continue
		}

		acm := Acm{Addr: ip, User: user, Pass: pass}
		if portStr != "" {
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				skipped = append(skipped, SkippedLogin{Line: lineNo, Text: line, Reason: "failed to parse ACM socket port"})
				continue
			}
			acm.Port = uint16(port)
		}

		acms = append(acms, NamedAcm{Name: name, Acm: acm})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read line of config: %w", err)
	}
	return acms, skipped, nil
}

// Run serializes inputs, drives an OSSI execute-mode SAT session to
// completion, and parses the reply stream. The ACM always appends a
// synthetic logoff Message at the end; Run passes it through unmodified —
// filtering it is a collaborator's job, not the core's.
func (a Acm) Run(inputs []Message) ([]Message, error) {
	return a.runWith(modeExecute, inputs)
}

// RunCached is Run memoized for cacheTTL (see cache.go). Errors are never
// cached.
func (a Acm) RunCached(inputs []Message) ([]Message, error) {
	key := cacheKey(a, inputs)
	return defaultCache.get(key, func() ([]Message, error) {
		return a.Run(inputs)
	})
}

// Manual drives an OSSI manual-page-mode session and returns the raw reply
// text verbatim; manual pages are not OSSI-framed.
func (a Acm) Manual(inputs []Message) (string, error) {
	stream, err := a.openSession(modeManual)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	if _, err := stream.Write(serializeAll(inputs)); err != nil {
		return "", fmt.Errorf("failed to write inputs to OSSI stream: %w", err)
	}
	if _, err := stream.Write([]byte(ossiLogoff)); err != nil {
		return "", fmt.Errorf("failed to write logoff to OSSI stream: %w", err)
	}

	out, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("failed to read manual pages: %w", err)
	}
	return string(out), nil
}

func (a Acm) runWith(mode sessionMode, inputs []Message) ([]Message, error) {
	stream, err := a.openSession(mode)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if _, err := stream.Write(serializeAll(inputs)); err != nil {
		return nil, fmt.Errorf("failed to write inputs to OSSI stream: %w", err)
	}
	if _, err := stream.Write([]byte(ossiLogoff)); err != nil {
		return nil, fmt.Errorf("failed to write logoff to OSSI stream: %w", err)
	}

	out, err := ParseOutput(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OSSI output: %w", err)
	}
	return out, nil
}
