package ftp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Entry describes one line of a LIST response, after parsing by one of
// the ListingParser implementations below.
type Entry struct {
	Name   string
	Type   EntryType
	Size   int64
	Target string // symlink target, when Type == EntryTypeLink
	Raw    string
}

type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDir
	EntryTypeLink
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeDir:
		return "dir"
	case EntryTypeLink:
		return "link"
	default:
		return "file"
	}
}

// ListingParser turns one line of LIST output into an Entry. Implementations
// are tried in order by parseListLine; the first to accept a line wins.
type ListingParser interface {
	Parse(line string) (*Entry, bool)
}

var defaultParsers = []ListingParser{UnixParser{}, DOSParser{}, EPLFParser{}}

func (c *Client) listParsers() []ListingParser {
	if len(c.opts.parsers) > 0 {
		return append(c.opts.parsers, defaultParsers...)
	}
	return defaultParsers
}

func parseListLine(parsers []ListingParser, line string) (*Entry, bool) {
	for _, p := range parsers {
		if e, ok := p.Parse(line); ok {
			return e, true
		}
	}
	return nil, false
}

// UnixParser parses the conventional "ls -l"-style lines most Unix FTP
// daemons emit, e.g. "drwxr-xr-x 2 user group 4096 Jan 01 00:00 name".
type UnixParser struct{}

var unixLineRegex = regexp.MustCompile(`^([\-dlbcps])[\-rwxsStT]{9}\s+\d+\s+\S+\s+\S+\s+(\d+)\s+(\w+\s+\d+\s+[\d:]+)\s+(.+)$`)

func (UnixParser) Parse(line string) (*Entry, bool) {
	m := unixLineRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	size, _ := strconv.ParseInt(m[2], 10, 64)
	name := m[4]
	target := ""
	typ := EntryTypeFile
	switch m[1] {
	case "d":
		typ = EntryTypeDir
	case "l":
		typ = EntryTypeLink
		if idx := strings.Index(name, " -> "); idx >= 0 {
			target = name[idx+4:]
			name = name[:idx]
		}
	}
	return &Entry{Name: name, Type: typ, Size: size, Target: target, Raw: line}, true
}

// DOSParser parses the MS-DOS-style listings some Windows FTP servers
// emit, e.g. "01-01-24  12:00AM  <DIR>  name" or "... 1234  name".
type DOSParser struct{}

var dosLineRegex = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2,4})\s+(\d{2}:\d{2}(?:AM|PM)?)\s+(<DIR>|\d+)\s+(.+)$`)

func isDOSDate(s string) bool {
	return regexp.MustCompile(`^\d{2}-\d{2}-\d{2,4}$`).MatchString(s)
}

func (DOSParser) Parse(line string) (*Entry, bool) {
	m := dosLineRegex.FindStringSubmatch(line)
	if m == nil || !isDOSDate(m[1]) {
		return nil, false
	}
	if m[3] == "<DIR>" {
		return &Entry{Name: m[4], Type: EntryTypeDir, Raw: line}, true
	}
	size, _ := strconv.ParseInt(m[3], 10, 64)
	return &Entry{Name: m[4], Type: EntryTypeFile, Size: size, Raw: line}, true
}

// EPLFParser parses the "Easily Parsed List Format" a minority of FTP
// daemons (notably some BSD variants) emit: a line starting with '+'
// followed by semicolon-separated facts, a tab, then the name.
type EPLFParser struct{}

func (EPLFParser) Parse(line string) (*Entry, bool) {
	if !strings.HasPrefix(line, "+") {
		return nil, false
	}
	tab := strings.IndexByte(line, '\t')
	if tab < 0 {
		return nil, false
	}
	facts := strings.Split(line[1:tab], ",")
	name := line[tab+1:]
	e := &Entry{Name: name, Raw: line, Type: EntryTypeFile}
	for _, f := range facts {
		switch {
		case f == "/":
			e.Type = EntryTypeDir
		case strings.HasPrefix(f, "s"):
			e.Size, _ = strconv.ParseInt(f[1:], 10, 64)
		}
	}
	return e, true
}

// List sends LIST for path (or the current directory if path is empty)
// and parses each returned line with the configured ListingParser chain.
func (c *Client) List(dir string) ([]*Entry, error) {
	if err := c.requireAtLeast("List", stateAuthenticated); err != nil {
		return nil, err
	}
	var args []string
	if dir != "" {
		args = append(args, dir)
	}
	conn, err := c.openTransferConn("LIST", cmdList, args...)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		conn.Close()
		c.transferInProgress.Store(false)
		return nil, &TransportError{Op: "LIST", Err: err}
	}
	if err := c.finishTransfer("LIST", conn, []int{226, 250}); err != nil {
		return nil, err
	}

	parsers := c.listParsers()
	var entries []*Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if e, ok := parseListLine(parsers, line); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// NameList sends NLST, which returns bare names with no metadata.
func (c *Client) NameList(dir string) ([]string, error) {
	if err := c.requireAtLeast("NameList", stateAuthenticated); err != nil {
		return nil, err
	}
	var args []string
	if dir != "" {
		args = append(args, dir)
	}
	conn, err := c.openTransferConn("NLST", cmdNlst, args...)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		conn.Close()
		c.transferInProgress.Store(false)
		return nil, &TransportError{Op: "NLST", Err: err}
	}
	if err := c.finishTransfer("NLST", conn, []int{226, 250}); err != nil {
		return nil, err
	}

	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ChangeDir sends CWD.
func (c *Client) ChangeDir(dir string) error {
	_, err := c.cc.command("CWD", []int{250}, cmdCwd, dir)
	return err
}

// ChangeDirUp sends CDUP.
func (c *Client) ChangeDirUp() error {
	_, err := c.cc.command("CDUP", []int{200, 250}, cmdCdup)
	return err
}

// Mount sends SMNT.
func (c *Client) Mount(path string) error {
	_, err := c.cc.command("SMNT", []int{202, 250}, cmdSmnt, path)
	return err
}

// CurrentDir sends PWD and unescapes the doubled-quote convention RFC 959
// uses to let a path contain a literal quote character.
func (c *Client) CurrentDir() (string, error) {
	reply, err := c.cc.command("PWD", []int{257}, cmdPwd)
	if err != nil {
		return "", err
	}
	return parseQuotedPath(reply.String())
}

// parseQuotedPath extracts the double-quoted path from a 257 reply's
// text, e.g. `"/a/b" is the current directory` -> `/a/b`, unescaping any
// doubled quote (`""`) within the path back to a single `"`.
func parseQuotedPath(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 || text[0] != '"' {
		return "", &MalformedReplyError{Op: "PWD", Raw: text, Reason: "reply does not start with a quote"}
	}
	var b strings.Builder
	i := 1
	for i < len(text) {
		if text[i] == '"' {
			if i+1 < len(text) && text[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			return b.String(), nil
		}
		b.WriteByte(text[i])
		i++
	}
	return "", &MalformedReplyError{Op: "PWD", Raw: text, Reason: "unterminated quote"}
}

// MakeDir sends MKD.
func (c *Client) MakeDir(dir string) error {
	_, err := c.cc.command("MKD", []int{257}, cmdMkd, dir)
	return err
}

// RemoveDir sends RMD.
func (c *Client) RemoveDir(dir string) error {
	_, err := c.cc.command("RMD", []int{250}, cmdRmd, dir)
	return err
}

// Delete sends DELE.
func (c *Client) Delete(path string) error {
	_, err := c.cc.command("DELE", []int{250}, cmdDele, path)
	return err
}

// Rename sends RNFR followed by RNTO. If RNFR is rejected, RNTO is never
// sent — a failed RNFR must short-circuit the sequence rather than issue
// RNTO against whatever the previous RNFR happened to leave pending.
func (c *Client) Rename(from, to string) error {
	if _, err := c.cc.command("RNFR", []int{350}, cmdRnfr, from); err != nil {
		return err
	}
	_, err := c.cc.command("RNTO", []int{250}, cmdRnto, to)
	return err
}

// Size sends SIZE.
func (c *Client) Size(path string) (int64, error) {
	reply, err := c.cc.command("SIZE", []int{213}, cmdSize, path)
	if err != nil {
		return 0, err
	}
	size, convErr := strconv.ParseInt(strings.TrimSpace(reply.String()), 10, 64)
	if convErr != nil {
		return 0, &MalformedReplyError{Op: "SIZE", Raw: reply.String(), Reason: "size is not numeric"}
	}
	return size, nil
}

const mdtmLayout = "20060102150405"

// ModTime sends MDTM.
func (c *Client) ModTime(path string) (time.Time, error) {
	reply, err := c.cc.command("MDTM", []int{213}, cmdMdtm, path)
	if err != nil {
		return time.Time{}, err
	}
	t, convErr := time.Parse(mdtmLayout, strings.TrimSpace(reply.String()))
	if convErr != nil {
		return time.Time{}, &MalformedReplyError{Op: "MDTM", Raw: reply.String(), Reason: "timestamp not in YYYYMMDDHHMMSS form"}
	}
	return t, nil
}

// SetModTime sends MFMT (an extension, not every server implements it).
func (c *Client) SetModTime(path string, t time.Time) error {
	_, err := c.cc.command("MFMT", []int{213}, cmdMfmt, t.UTC().Format(mdtmLayout), path)
	return err
}

// Chmod sends SITE CHMOD, a de facto standard extension for Unix-backed
// servers.
func (c *Client) Chmod(path string, mode uint32) error {
	_, err := c.cc.command("SITE CHMOD", []int{200}, cmdSite, "CHMOD", fmt.Sprintf("%o", mode), path)
	return err
}

// WalkFunc is called for each entry discovered by Walk. Returning
// SkipDir from a call for a directory entry prevents Walk from
// descending into it.
type WalkFunc func(dirPath string, entry *Entry) error

// SkipDir tells Walk to skip the directory it was about to recurse into.
var SkipDir = fmt.Errorf("skip this directory")

// Walk recursively visits root and every directory beneath it, calling
// fn once per entry in the order List returns them.
func (c *Client) Walk(root string, fn WalkFunc) error {
	entries, err := c.List(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(root, e); err != nil {
			if err == SkipDir {
				continue
			}
			return err
		}
		if e.Type == EntryTypeDir {
			if err := c.Walk(path.Join(root, e.Name), fn); err != nil {
				return err
			}
		}
	}
	return nil
}
