// Package certloader is the external collaborator named in the design
// spec's scope section: a pure function from a certificate/key PEM pair on
// disk to a parsed tls.Certificate, with no caching or reload behavior of
// its own.
package certloader

import (
	"crypto/tls"
	"fmt"
)

// Load reads certPath/keyPath (PEM-encoded) and returns the parsed
// certificate chain + private key ready for a tls.Config.
func Load(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certloader: load %s/%s: %w", certPath, keyPath, err)
	}
	return cert, nil
}
