package ftp

import (
	"strconv"
	"strings"
)

// Reply is a parsed FTP control-channel response. Codes holds every
// status code that begins a line of the reply, in the order read: one
// for a single-line reply; the opening code, any code-prefixed body
// lines and the closing code for a multi-line one. RawText holds the
// message text of the last line. The preliminary (1xx) and final replies
// of a transfer are read as two separate Replies.
type Reply struct {
	Codes   []int
	RawText string
	Lines   []string
}

// Primary returns the most recently read status code, or 0 if Reply is
// the zero value.
func (r *Reply) Primary() int {
	if len(r.Codes) == 0 {
		return 0
	}
	return r.Codes[len(r.Codes)-1]
}

func (r *Reply) Is1xx() bool { return r.Primary()/100 == 1 }
func (r *Reply) Is2xx() bool { return r.Primary()/100 == 2 }
func (r *Reply) Is3xx() bool { return r.Primary()/100 == 3 }
func (r *Reply) Is4xx() bool { return r.Primary()/100 == 4 }
func (r *Reply) Is5xx() bool { return r.Primary()/100 == 5 }
func (r *Reply) Is6xx() bool { return r.Primary()/100 == 6 }

// Accepts reports whether any code in Reply.Codes is present in set. An
// empty set never matches.
func (r *Reply) Accepts(set ...int) bool {
	for _, got := range r.Codes {
		for _, want := range set {
			if got == want {
				return true
			}
		}
	}
	return false
}

func (r *Reply) String() string {
	return strings.TrimSpace(r.RawText)
}

// lineReader is the minimal surface readReply needs from a control
// connection. Transport satisfies it directly via ReadUntil, which is
// what makes a reply read subject to the same deadline/timeout handling
// as every other control-channel operation; tests substitute a bare
// bufio-backed adapter that has no notion of deadlines at all.
type lineReader interface {
	ReadUntil(delim byte) ([]byte, error)
}

// readReply consumes one complete FTP reply from r, handling the RFC 959
// multi-line framing rule: a line "ddd-text" opens a multi-line reply that
// is closed by a line "ddd text" carrying the same three-digit code. RFC
// 2389 continuation lines (a line beginning with a single space, used by
// FEAT/OPTS-style replies) are preserved verbatim in Lines but do not
// affect framing.
func readReply(r lineReader, op string) (*Reply, error) {
	line, err := readLine(r, op)
	if err != nil {
		return nil, err
	}
	code, sep, text, err := splitReplyLine(line, op)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Codes: []int{code}, Lines: []string{line}}

	if sep == ' ' {
		reply.RawText = text
		return reply, nil
	}
	if sep != '-' {
		return nil, &MalformedReplyError{Op: op, Raw: line, Reason: "missing separator after status code"}
	}

	// Multi-line reply: read until a line "code " (same code, space) closes it.
	prefix := strconv.Itoa(code)
	for {
		next, err := readLine(r, op)
		if err != nil {
			return nil, err
		}
		reply.Lines = append(reply.Lines, next)
		if c, _, _, perr := splitReplyLine(next, op); perr == nil {
			reply.Codes = append(reply.Codes, c)
		}

		if strings.HasPrefix(next, prefix+" ") {
			reply.RawText = strings.TrimPrefix(next, prefix+" ")
			return reply, nil
		}
		if strings.HasPrefix(next, prefix+"-") {
			// A nested same-code continuation restates the opener and
			// does not close the reply.
			continue
		}
		// RFC 2389 allows continuation lines indented with a single space
		// and carrying no status code at all; anything else is still part
		// of the free-text body until the closing line appears.
	}
}

func readLine(r lineReader, op string) (string, error) {
	line, err := r.ReadUntil('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func splitReplyLine(line, op string) (code int, sep byte, text string, err error) {
	if len(line) < 4 {
		return 0, 0, "", &MalformedReplyError{Op: op, Raw: line, Reason: "line shorter than a status code"}
	}
	n, convErr := strconv.Atoi(line[:3])
	if convErr != nil {
		return 0, 0, "", &MalformedReplyError{Op: op, Raw: line, Reason: "status code is not numeric"}
	}
	if n < 100 || n > 699 {
		return 0, 0, "", &MalformedReplyError{Op: op, Raw: line, Reason: "status code out of range"}
	}
	return n, line[3], line[4:], nil
}
