package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cqstream/errors"
)

// generateTestCert generates a self-signed certificate for testing
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "test-client",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadClientTLSConfig_Zero(t *testing.T) {
	cfg, err := LoadClientTLSConfig(ClientConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := generateTestCert(t)
	certFile := writeFile(t, dir, "cert.pem", certPEM)
	keyFile := writeFile(t, dir, "key.pem", keyPEM)

	cfg, err := LoadClientTLSConfig(ClientConfig{
		CAFiles:    []string{certFile},
		CertFile:   certFile,
		KeyFile:    keyFile,
		MinVersion: "1.3",
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs)
	assert.Len(t, cfg.Certificates, 1)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestLoadClientTLSConfig_Insecure(t *testing.T) {
	cfg, err := LoadClientTLSConfig(ClientConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Nil(t, cfg.RootCAs, "system roots are used when no CA files are given")
}

func TestLoadClientTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := writeFile(t, dir, "garbage.pem", []byte("not a certificate"))

	tests := []struct {
		name      string
		cfg       ClientConfig
		wantClass func(error) bool
	}{
		{"missing CA file", ClientConfig{CAFiles: []string{filepath.Join(dir, "missing.pem")}}, errors.IsFatal},
		{"invalid CA PEM", ClientConfig{CAFiles: []string{garbage}}, errors.IsFatal},
		{"cert without key", ClientConfig{CertFile: garbage}, errors.IsInvalid},
		{"bad key pair", ClientConfig{CertFile: garbage, KeyFile: garbage}, errors.IsFatal},
		{"unknown version", ClientConfig{MinVersion: "1.0"}, errors.IsInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClientTLSConfig(tt.cfg)
			require.Error(t, err)
			assert.True(t, tt.wantClass(err), "got %v", err)
		})
	}
}
