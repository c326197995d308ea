// Package tlsconfig loads certificate and key files from disk into the
// *tls.Config values the server and agent gRPC connections need for
// mutual TLS. It intentionally does nothing beyond that: certificate
// issuance and rotation are out of scope.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Files names the PEM files a ServerConfig/ClientConfig is built from.
type Files struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// ServerConfig loads a server-side mTLS config: its own certificate plus
// a client CA pool; every client must present a certificate that
// verifies against that pool during the handshake.
func ServerConfig(f Files) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load server certificate: %w", err)
	}
	pool, err := loadCA(f.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig loads a client-side mTLS config: its own certificate plus
// the server CA pool used to verify the server's certificate.
func ClientConfig(f Files) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load client certificate: %w", err)
	}
	pool, err := loadCA(f.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func loadCA(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tlsconfig: no certificates found in %s", caFile)
	}
	return pool, nil
}
