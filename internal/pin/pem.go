package pin

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// FromPEM returns one pin per CERTIFICATE block in data, in file order.
// Other block types are ignored.
func FromPEM(data []byte, kind Kind) ([]string, error) {
	var pins []string
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
			return nil, fmt.Errorf("pin: parse certificate %d: %w", len(pins)+1, err)
		}
		pins = append(pins, FromCertificate(cert, kind))
	}
	if len(pins) == 0 {
		return nil, fmt.Errorf("pin: no CERTIFICATE blocks found")
	}
	return pins, nil
}

// FromPEMFile reads path and calls FromPEM.
func FromPEMFile(path string, kind Kind) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pin: read %s: %w", path, err)
	}
	return FromPEM(data, kind)
}
