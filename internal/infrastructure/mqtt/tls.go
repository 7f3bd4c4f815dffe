package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// tlsMinVersion is the minimum TLS version for broker connections.
const tlsMinVersion = tls.VersionTLS12

// LoadTLSConfig builds a client tls.Config from the given files.
//
// Trust anchors come from CAFile plus every *.crt and *.pem file in CertDir.
// Problems with trust anchors are reported through warn and never fail the
// call. The client key pair is mandatory.
//
// Parameters:
//   - files: Paths to the CA bundle, certificate directory, and client key pair
//   - warn: Receives non-fatal problems (may be nil)
//
// Returns:
//   - *tls.Config: Ready for use with an ssl:// broker URL
//   - error: Wraps ErrTLSConfig if the client key pair cannot be loaded
func LoadTLSConfig(files TLSFiles, warn func(msg string, args ...any)) (*tls.Config, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}

	pool := x509.NewCertPool()
	added := 0

	if files.CAFile != "" {
		n, err := appendPEMFile(pool, files.CAFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			warn("CA file not found, broker certificate will be checked against other trust anchors only", "path", files.CAFile)
		case err != nil:
			warn("CA file unusable", "path", files.CAFile, "error", err)
		}
		added += n
	}

	if files.CertDir != "" {
		n := appendCertDir(pool, files.CertDir, files.CAFile, warn)
		added += n
	}

	if files.CertFile == "" || files.KeyFile == "" {
		return nil, fmt.Errorf("%w: client certificate and key paths are required", ErrTLSConfig)
	}

	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading client key pair: %w", ErrTLSConfig, err)
	}

	cfg := &tls.Config{
		MinVersion:   tlsMinVersion,
		Certificates: []tls.Certificate{cert},
	}
	if added > 0 {
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// appendCertDir adds every *.crt and *.pem file in dir except skip.
func appendCertDir(pool *x509.CertPool, dir, skip string, warn func(string, ...any)) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		warn("certificate directory unreadable", "path", dir, "error", err)
		return 0
	}

	added := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".crt" && ext != ".pem" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if skip != "" && filepath.Clean(path) == filepath.Clean(skip) {
			continue
		}

		n, err := appendPEMFile(pool, path)
		if err != nil {
			warn("skipping certificate", "path", path, "error", err)
			continue
		}
		added += n
	}
	return added
}

// appendPEMFile adds the certificates in path to pool and returns how many
// were added.
func appendPEMFile(pool *x509.CertPool, path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return 0, err
	}

	n := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return n, fmt.Errorf("parsing certificate: %w", err)
		}
		pool.AddCert(cert)
		n++
	}

	if n == 0 {
		return 0, errors.New("no PEM certificates found")
	}
	return n, nil
}
