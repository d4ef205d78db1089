package ftp

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/merowin/ftp/internal/ftptest"
)

// S1: successful passive download.
func TestScenario_PassiveDownload(t *testing.T) {
	srv, err := ftptest.New()
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	want := []byte("hello from the server\n")
	if err := os.WriteFile(filepath.Join(srv.Root(), "greeting.txt"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()

	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	got, err := c.Download("greeting.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Download() = %q, want %q", got, want)
	}
}

// S3: login failure.
func TestScenario_LoginFailure(t *testing.T) {
	srv, err := ftptest.New(ftptest.WithCredentials("alice", "s3cret"))
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()

	err = c.Login("alice", "wrong-password")
	if err == nil {
		t.Fatal("expected login failure")
	}
	ure, ok := err.(*UnexpectedReplyError)
	if !ok {
		t.Fatalf("got %T, want *UnexpectedReplyError", err)
	}
	if ure.Codes[0] != 530 {
		t.Errorf("code = %d, want 530", ure.Codes[0])
	}
}

// S4: PWD returns the unquoted current directory. Unescaping of an
// embedded doubled quote is covered by TestParseQuotedPath.
func TestScenario_CurrentDirQuoting(t *testing.T) {
	srv, err := ftptest.New()
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()
	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	dir, err := c.CurrentDir()
	if err != nil {
		t.Fatalf("CurrentDir: %v", err)
	}
	if dir != "/" {
		t.Errorf("CurrentDir() = %q, want %q", dir, "/")
	}
}

// S6: rename sequence where a failing RNFR short-circuits RNTO.
func TestScenario_RenameShortCircuitsOnRNFRFailure(t *testing.T) {
	srv, err := ftptest.New()
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()
	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// RNFR against a file that doesn't exist must fail with 550, and
	// RNTO must never be sent as a result.
	err = c.Rename("does-not-exist.txt", "new-name.txt")
	if err == nil {
		t.Fatal("expected Rename to fail")
	}
	if _, err := os.Stat(filepath.Join(srv.Root(), "new-name.txt")); err == nil {
		t.Fatal("RNTO must not have run: new-name.txt should not exist")
	}

	// A successful RNFR followed by RNTO does rename the file.
	src := filepath.Join(srv.Root(), "original.txt")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Rename("original.txt", "renamed.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(filepath.Join(srv.Root(), "renamed.txt")); err != nil {
		t.Fatal("expected renamed.txt to exist")
	}
}

// Testable property 6: a command issued while DISCONNECTED is a UsageError
// and never touches the network.
func TestStateMachine_DownloadWhileDisconnected(t *testing.T) {
	c := &Client{state: stateDisconnected}
	_, err := c.Download("whatever")
	if err == nil {
		t.Fatal("expected UsageError")
	}
	if _, ok := err.(*UsageError); !ok {
		t.Errorf("got %T, want *UsageError", err)
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv, err := ftptest.New()
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()
	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	payload := bytes.Repeat([]byte("data"), 4096)
	if err := c.Upload("roundtrip.bin", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	size, err := c.Size("roundtrip.bin")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("Size() = %d, want %d", size, len(payload))
	}

	got, err := c.Download("roundtrip.bin")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round-tripped data does not match")
	}
}

func TestListDirectory(t *testing.T) {
	srv, err := ftptest.New()
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()
	if err := os.Mkdir(filepath.Join(srv.Root(), "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srv.Root(), "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()
	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	entries, err := c.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestActiveModeDownload(t *testing.T) {
	srv, err := ftptest.New()
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	want := []byte("active mode payload")
	if err := os.WriteFile(filepath.Join(srv.Root(), "active.txt"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second), WithActiveMode())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()
	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	got, err := c.Download("active.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Download() = %q, want %q", got, want)
	}
}
