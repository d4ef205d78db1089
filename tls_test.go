package ftp

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/merowin/ftp/internal/ftptest"
)

// selfSignedCert produces a loopback-only TLS certificate for test servers;
// real-world chain verification is out of scope for these tests, so the
// client side connects with InsecureSkipVerify.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}

	var certPEM, keyPEM bytes.Buffer
	pem.Encode(&certPEM, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	pem.Encode(&keyPEM, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM.Bytes(), keyPEM.Bytes())
	if err != nil {
		t.Fatalf("X509KeyPair: %v", err)
	}
	return cert
}

func TestScenario_ExplicitTLSUploadDownload(t *testing.T) {
	cert := selfSignedCert(t)
	srv, err := ftptest.New(ftptest.WithTLS(&tls.Config{Certificates: []tls.Certificate{cert}}))
	if err != nil {
		t.Fatalf("ftptest.New: %v", err)
	}
	defer srv.Close()

	clientCfg := &tls.Config{InsecureSkipVerify: true}
	c, err := Dial(srv.Addr(), WithTimeout(5*time.Second), WithExplicitTLS(clientCfg))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Quit()

	if err := c.Login("anonymous", "anon@example.com"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	payload := []byte("secret over TLS")
	if err := c.Upload("secure.bin", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(srv.Root(), "secure.bin")); err != nil {
		t.Fatalf("expected secure.bin to exist: %v", err)
	}

	got, err := c.Download("secure.bin")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Download() = %q, want %q", got, payload)
	}
}
