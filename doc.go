// Package ftp implements an FTP client: the control-channel dialogue of
// RFC 959, passive/active data connections including the extended
// addressing of RFC 2428 (EPSV/EPRT), and the AUTH TLS / PBSZ / PROT
// negotiation of RFC 2228.
//
// A minimal session looks like:
//
//	c, err := ftp.Dial("ftp.example.com:21", ftp.WithTimeout(10*time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Quit()
//
//	if err := c.Login("anonymous", "anonymous@example.com"); err != nil {
//		log.Fatal(err)
//	}
//
//	data, err := c.Download("/pub/README")
//
// Every public method returns an error implementing one of the typed
// kinds in errors.go; none of them panic. A Client's data connections are
// opened passively by default; WithActiveMode switches to PORT/EPRT.
package ftp
