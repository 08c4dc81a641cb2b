// Package angelshark drives Avaya Communication Manager Site Administration
// Terminals (SATs) over SSH, speaking the line-framed OSSI protocol, and
// fans work out across many ACMs in parallel.
package angelshark

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	delimACM        = 'a'
	delimCommand    = 'c'
	delimData       = 'd'
	delimError      = 'e'
	delimField      = 'f'
	delimNewData    = 'n'
	delimTerminator = 't'
	tab             = "\t"
)

// Message is a single OSSI record, used for both input to and output from
// an ACM's SAT.
type Message struct {
	Command string
	Fields  []string
	Datas   [][]string
	Error   string
}

// NewMessage creates a Message carrying only a command.
func NewMessage(command string) Message {
	return Message{Command: command}
}

func (m *Message) addFields(fields []string) {
	if len(fields) == 0 {
		return
	}
	m.Fields = append(m.Fields, fields...)
}

func (m *Message) addDataEntry(row []string) {
	if len(row) == 0 {
		return
	}
	m.Datas = append(m.Datas, row)
}

// NamedMessage pairs a Message with the job name (ACM label) it was tagged
// for on input.
type NamedMessage struct {
	Name    string
	Message Message
}

// ParseInput reads Angelshark-formatted OSSI input: the same wire format as
// ParseOutput, plus 'a' lines naming the ACM(s) a message is queued for.
// Unlike ParseOutput, consecutive 'd' lines are NOT separate rows — their
// cells concatenate into a single row, finalized only at 't'. This
// asymmetry with ParseOutput is intentional (carried over from the
// protocol's reference implementation) and must be preserved.
func ParseInput(r io.Reader) ([]NamedMessage, error) {
	var (
		names   []string
		current Message
		row     []string
		out     []NamedMessage
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		delim, payload := line[0], line[1:]

		switch delim {
		case delimACM:
			names = append(names, strings.Split(payload, tab)...)
		case delimCommand:
			current.Command = payload
		case delimField:
			current.addFields(strings.Split(payload, tab))
		case delimData:
			row = append(row, strings.Split(payload, tab)...)
		case delimTerminator:
			current.addDataEntry(row)
			for _, name := range names {
				out = append(out, NamedMessage{Name: name, Message: current})
			}
			names = nil
			current = Message{}
			row = nil
		default:
			// Unknown delimiter codes are skipped silently.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line of input: %w", err)
	}
	return out, nil
}

// ParseOutput reads ACM OSSI output: 'n' starts a new data row, and 't'
// finalizes pending state into a Message. See ParseInput for the
// deliberate difference in how 'd' lines are grouped into rows.
func ParseOutput(r io.Reader) ([]Message, error) {
	var (
		current Message
		row     []string
		out     []Message
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		delim, payload := line[0], line[1:]

		switch delim {
		case delimCommand:
			current.Command = payload
		case delimError:
			current.Error = payload
		case delimField:
			current.addFields(strings.Split(payload, tab))
		case delimData:
			row = append(row, strings.Split(payload, tab)...)
		case delimNewData:
			current.addDataEntry(row)
			row = nil
		case delimTerminator:
			current.addDataEntry(row)
			row = nil
			out = append(out, current)
			current = Message{}
		default:
			// Unknown delimiter codes and blank lines are skipped silently.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line of output: %w", err)
	}
	return out, nil
}

// Serialize renders m in the wire format the SAT expects on input:
//
//	c<command>
//	[e<error>]
//	[f<tab-joined fields>]
//	[d<tab-joined row>
//	 n
//	 d<tab-joined row> ...]
//	t
//
// A trailing newline after the terminator line is always written.
func (m Message) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "c%s\n", m.Command)
	if m.Error != "" {
		fmt.Fprintf(&b, "e%s\n", m.Error)
	}
	if m.Fields != nil {
		fmt.Fprintf(&b, "f%s\n", strings.Join(m.Fields, tab))
	}
	for i, row := range m.Datas {
		if i > 0 {
			b.WriteString("n\n")
		}
		fmt.Fprintf(&b, "d%s\n", strings.Join(row, tab))
	}
	b.WriteString("t\n")
	return []byte(b.String())
}

func serializeAll(messages []Message) []byte {
	var b strings.Builder
	for _, m := range messages {
		b.Write(m.Serialize())
	}
	return []byte(b.String())
}
