package gateway

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// CipherList is the allow-list applied to every TLS port, in OpenSSL notation.
const CipherList = "ECDHE-ECDSA-AES128-GCM-SHA256:ECDHE-RSA-AES128-GCM-SHA256:" +
	"ECDHE-ECDSA-AES256-GCM-SHA384:ECDHE-RSA-AES256-GCM-SHA384:" +
	"ECDHE-ECDSA-CHACHA20-POLY1305:ECDHE-RSA-CHACHA20-POLY1305:" +
	"DHE-RSA-AES128-GCM-SHA256:DHE-RSA-AES256-GCM-SHA384"

// crypto/tls has no finite-field DHE suites; those names are skipped.
var opensslCiphers = map[string]uint16{
	"ECDHE-ECDSA-AES128-GCM-SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-RSA-AES128-GCM-SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-ECDSA-AES256-GCM-SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-RSA-AES256-GCM-SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-ECDSA-CHACHA20-POLY1305": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	"ECDHE-RSA-CHACHA20-POLY1305":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// TLSPolicy is the transport-security configuration of one port.
type TLSPolicy struct {
	CertFile   string
	KeyFile    string
	CipherList string
	// DisabledVersions are refused during the handshake: the two oldest
	// versions crypto/tls can negotiate.
	DisabledVersions []uint16
	// PreferServerCipherOrder is always false: the client's order wins.
	PreferServerCipherOrder bool
	// AllowPlaintext accepts unencrypted connections on the TLS port.
	AllowPlaintext bool
	// RedirectToTLS answers plaintext requests with a redirect to https.
	RedirectToTLS bool
}

// NewTLSPolicy returns the policy for a port, or nil when either path is
// empty. A nil policy means the port serves plaintext only and never redirects.
func NewTLSPolicy(certFile, keyFile string) *TLSPolicy {
	if certFile == "" || keyFile == "" {
		return nil
	}
	return &TLSPolicy{
		CertFile:         certFile,
		KeyFile:          keyFile,
		CipherList:       CipherList,
		DisabledVersions: []uint16{tls.VersionTLS10, tls.VersionTLS11},
		AllowPlaintext:   true,
		RedirectToTLS:    true,
	}
}

// CipherSuites maps CipherList onto crypto/tls suite IDs. Names crypto/tls
// does not implement are returned in skipped.
func (p *TLSPolicy) CipherSuites() (suites []uint16, skipped []string) {
	for _, name := range strings.Split(p.CipherList, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if id, ok := opensslCiphers[name]; ok {
			suites = append(suites, id)
			continue
		}
		skipped = append(skipped, name)
	}
	return suites, skipped
}

// MinVersion is the lowest version left after DisabledVersions.
func (p *TLSPolicy) MinVersion() uint16 {
	minVersion := uint16(tls.VersionTLS10)
	for _, v := range p.DisabledVersions {
		if v >= minVersion {
			minVersion = v + 1
		}
	}
	return minVersion
}

// ServerConfig loads the key pair and builds the tls.Config for the port.
// crypto/tls ignores server cipher preference, which matches
// PreferServerCipherOrder being cleared.
func (p *TLSPolicy) ServerConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair %s/%s: %w", p.CertFile, p.KeyFile, err)
	}

	suites, _ := p.CipherSuites()
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		CipherSuites: suites,
		MinVersion:   p.MinVersion(),
		NextProtos:   []string{"http/1.1"},
	}, nil
}
