package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mareye-api/internal/config"
)

func TestDevCertGeneratedOnceAndReused(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	gen := NewDevCertGenerator(dir)

	cert, err := gen.GenerateCert([]string{"mareye.local", "127.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Contains(t, cert.Leaf.DNSNames, "mareye.local")
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.Leaf.IPAddresses[0].String())

	info, err := os.Stat(filepath.Join(dir, "dev-key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a fresh generator picks up the key pair written to disk
	again, err := NewDevCertGenerator(dir).GenerateCert([]string{"other.local"})
	require.NoError(t, err)
	assert.Equal(t, cert.Leaf.SerialNumber, again.Leaf.SerialNumber)
}

func TestDevCertRegeneratedWhenExpired(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)
	first, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)

	gen.now = func() time.Time { return time.Now().Add(2 * devCertValidity) }
	second, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Leaf.SerialNumber, second.Leaf.SerialNumber)
}

func TestManagerFallsBackToSelfSigned(t *testing.T) {
	m := NewManager(config.ServerConfig{
		EnableTLS:   true,
		Domain:      "localhost",
		CertFile:    "/nonexistent/cert.pem",
		KeyFile:     "/nonexistent/key.pem",
		AutoCertDir: t.TempDir(),
	})
	assert.Nil(t, m.AutocertManager())

	cfg := m.TLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Contains(t, cert.Leaf.DNSNames, "localhost")
}
