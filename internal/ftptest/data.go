package ftptest

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

func (s *session) localHost() string {
	host, _, _ := net.SplitHostPort(s.conn.LocalAddr().String())
	return host
}

func (s *session) handlePASV() {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.localHost(), "0"))
	if err != nil {
		s.reply(425, "cannot open data connection")
		return
	}
	s.dataListener = ln
	s.dataDialTo = ""

	host := s.localHost()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		parts = []string{"127", "0", "0", "1"}
	}
	s.reply(227, fmt.Sprintf("Entering Passive Mode (%s,%s,%s,%s,%d,%d)",
		parts[0], parts[1], parts[2], parts[3], port/256, port%256))
}

func (s *session) handleEPSV() {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.localHost(), "0"))
	if err != nil {
		s.reply(425, "cannot open data connection")
		return
	}
	s.dataListener = ln
	s.dataDialTo = ""

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	s.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%s|)", portStr))
}

func (s *session) handlePORT(arg string) {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		s.reply(501, "malformed PORT argument")
		return
	}
	host := strings.Join(parts[:4], ".")
	p1, _ := strconv.Atoi(parts[4])
	p2, _ := strconv.Atoi(parts[5])
	s.closeDataListener()
	s.dataDialTo = net.JoinHostPort(host, strconv.Itoa(p1*256+p2))
	s.reply(200, "PORT ok")
}

func (s *session) handleEPRT(arg string) {
	// |1|host|port| or |2|host|port|
	fields := strings.Split(strings.Trim(arg, "|"), "|")
	if len(fields) != 3 {
		s.reply(501, "malformed EPRT argument")
		return
	}
	s.closeDataListener()
	s.dataDialTo = net.JoinHostPort(fields[1], fields[2])
	s.reply(200, "EPRT ok")
}

func (s *session) closeDataListener() {
	if s.dataListener != nil {
		s.dataListener.Close()
		s.dataListener = nil
	}
}

func (s *session) openData() (net.Conn, error) {
	if s.dataListener != nil {
		ln := s.dataListener
		defer func() { s.dataListener = nil }()
		_ = ln.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
		conn, err := ln.Accept()
		ln.Close()
		return conn, err
	}
	if s.dataDialTo != "" {
		addr := s.dataDialTo
		s.dataDialTo = ""
		return net.DialTimeout("tcp", addr, 5*time.Second)
	}
	return nil, fmt.Errorf("no data connection configured")
}

func (s *session) handleList(cmd, arg string) {
	dir := s.resolve(arg)
	entries, err := os.ReadDir(s.realPath(dir))
	if err != nil {
		s.reply(450, "cannot list directory")
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	conn, err := s.openData()
	if err != nil {
		s.reply(425, "cannot open data connection")
		return
	}
	s.reply(150, "opening data connection")

	var b strings.Builder
	for _, e := range entries {
		if cmd == "NLST" {
			fmt.Fprintf(&b, "%s\r\n", e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		kind := byte('-')
		if e.IsDir() {
			kind = 'd'
		}
		fmt.Fprintf(&b, "%crwxr-xr-x 1 owner group %12d Jan 01 00:00 %s\r\n", kind, info.Size(), e.Name())
	}
	io.WriteString(conn, b.String())
	conn.Close()
	s.reply(226, "transfer complete")
}

func (s *session) handleRetr(arg string) {
	f, err := os.Open(s.realPath(s.resolve(arg)))
	if err != nil {
		s.reply(550, "not found")
		return
	}
	defer f.Close()

	conn, err := s.openData()
	if err != nil {
		s.reply(425, "cannot open data connection")
		return
	}
	s.reply(150, "opening data connection")
	io.Copy(conn, f)
	conn.Close()
	s.reply(226, "transfer complete")
}

func (s *session) handleStor(arg string, isAppend bool) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if isAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(s.realPath(s.resolve(arg)), flags, 0o644)
	if err != nil {
		s.reply(550, "cannot create file")
		return
	}
	defer f.Close()

	conn, err := s.openData()
	if err != nil {
		s.reply(425, "cannot open data connection")
		return
	}
	s.reply(150, "opening data connection")
	io.Copy(f, conn)
	conn.Close()
	s.reply(226, "transfer complete")
}
