package filesec

import (
	"bytes"
	"context"
)

// ScanResult reports signature matches found in file content.
type ScanResult struct {
	IsClean bool     `json:"isClean"`
	Threats []string `json:"threats"`
}

// Scanner checks file content for known-malicious patterns. Implementations
// must be safe for concurrent use.
type Scanner interface {
	Scan(ctx context.Context, content []byte) (ScanResult, error)
}

// eicarSignature is the standard antivirus test string. Any scanner is
// expected to flag it; it is harmless by design.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// SignatureScanner matches content against a small set of known-bad byte
// patterns. It is a lightweight heuristic for catching obviously hostile
// uploads, not a substitute for a real antivirus engine.
type SignatureScanner struct {
	signatures map[string][]byte
}

// NewSignatureScanner returns a scanner loaded with the built-in signatures.
func NewSignatureScanner() *SignatureScanner {
	return &SignatureScanner{
		signatures: map[string][]byte{
			"EICAR-Test-File": []byte(eicarSignature),
		},
	}
}

// AddSignature registers an additional named byte pattern. Not safe to call
// concurrently with Scan.
func (s *SignatureScanner) AddSignature(name string, pattern []byte) {
	if name == "" || len(pattern) == 0 {
		return
	}
	s.signatures[name] = pattern
}

// Scan reports every signature found in the content.
func (s *SignatureScanner) Scan(ctx context.Context, content []byte) (ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}
	result := ScanResult{IsClean: true}
	for name, pattern := range s.signatures {
		if bytes.Contains(content, pattern) {
			result.IsClean = false
			result.Threats = append(result.Threats, name)
		}
	}
	return result, nil
}
