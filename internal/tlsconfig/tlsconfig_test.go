package tlsconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerConfigFailsOnMissingCertFile(t *testing.T) {
	_, err := ServerConfig(Files{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem", CAFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}

func TestClientConfigFailsOnMissingCertFile(t *testing.T) {
	_, err := ClientConfig(Files{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem", CAFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}
