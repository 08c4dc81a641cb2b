package angelshark

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func TestWaitForPromptFindsTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("welcome\nlogin ok\nt\nclist x\nt\n"))
	if !waitForPrompt(r) {
		t.Fatal("expected to find the 't' prompt line")
	}

	// Bytes after the prompt line must still be readable through the same
	// reader — prompt synchronization must not drop buffered data.
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(rest) != "clist x\nt\n" {
		t.Fatalf("got leftover %q, want %q", rest, "clist x\nt\n")
	}
}

func TestWaitForPromptNeverReached(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("connection closed before login\n"))
	if waitForPrompt(r) {
		t.Fatal("expected waitForPrompt to fail: stream ended without a 't' line")
	}
}

func TestWaitForPromptIgnoresLinesContainingT(t *testing.T) {
	// Only a line that is EXACTLY "t" counts; "test" or "at" must not match.
	r := bufio.NewReader(strings.NewReader("test\nat\nt\n"))
	if !waitForPrompt(r) {
		t.Fatal("expected to eventually find the exact 't' line")
	}
}

func TestTrimNewline(t *testing.T) {
	cases := map[string]string{
		"t\n":   "t",
		"t\r\n": "t",
		"t":     "t",
		"":      "",
	}
	for in, want := range cases {
		if got := trimNewline(in); got != want {
			t.Errorf("trimNewline(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSessionModes(t *testing.T) {
	if modeExecute.termBytes != "ossie\n" {
		t.Errorf("modeExecute.termBytes = %q", modeExecute.termBytes)
	}
	if modeManual.termBytes != "ossiem\n" {
		t.Errorf("modeManual.termBytes = %q", modeManual.termBytes)
	}
}

func TestAnswerEveryPromptUsesPassword(t *testing.T) {
	a := Acm{Pass: "hunter2"}
	answers, err := a.answerEveryPrompt("user", "instructions", []string{"Password:", "Password again:"}, []bool{false, false})
	if err != nil {
		t.Fatalf("answerEveryPrompt: %v", err)
	}
	if len(answers) != 2 || answers[0] != "hunter2" || answers[1] != "hunter2" {
		t.Fatalf("got %#v, want every prompt answered with the password", answers)
	}
}

func TestOpenSessionFailsFastOnUnreachableHost(t *testing.T) {
	a := unreachableAcm(t)
	if _, err := a.openSession(modeExecute); err == nil {
		t.Fatal("expected an error opening a session against an unreachable host")
	}
}
