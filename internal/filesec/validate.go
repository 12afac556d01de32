// Package filesec validates and scans uploaded files before anything else
// touches them: size and MIME checks, filename sanitization, content hashing
// and a signature-based malware scan.
package filesec

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	ErrFileTooLarge        = errors.New("filesec: file exceeds maximum allowed size")
	ErrUnsupportedFileType = errors.New("filesec: unsupported file type")
	ErrMaliciousContent    = errors.New("filesec: malicious content detected")
)

// WarnNameSanitized is added when the supplied filename had to be altered.
const WarnNameSanitized = "file name was sanitized"

// Config bounds a single upload attempt.
type Config struct {
	MaxFileSize      int64
	AllowedMimeTypes []string
}

// ValidationResult is computed once per upload attempt and consumed by the
// handler and the audit logger. Immutable after construction.
type ValidationResult struct {
	IsValid       bool     `json:"isValid"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	SanitizedName string   `json:"sanitizedName"`
	FileHash      string   `json:"fileHash"`
	SizeBytes     int64    `json:"sizeBytes"`
	MimeType      string   `json:"mimeType"`
}

// Validate applies the checks in order: size, MIME type, name sanitization,
// content hash. The hash is computed regardless of validity so rejected
// attempts are still identifiable in the audit trail.
func Validate(name, mimeType string, content []byte, cfg Config) ValidationResult {
	result := ValidationResult{
		SizeBytes: int64(len(content)),
		MimeType:  mimeType,
	}

	if cfg.MaxFileSize > 0 && result.SizeBytes > cfg.MaxFileSize {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"file size %d exceeds maximum allowed size %d", result.SizeBytes, cfg.MaxFileSize))
	}

	if !mimeAllowed(mimeType, cfg.AllowedMimeTypes) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"file type %q is not allowed", mimeType))
	}

	result.SanitizedName = SanitizeFileName(name)
	if result.SanitizedName != name {
		result.Warnings = append(result.Warnings, WarnNameSanitized)
	}

	sum := sha256.Sum256(content)
	result.FileHash = hex.EncodeToString(sum[:])

	result.IsValid = len(result.Errors) == 0
	return result
}

func mimeAllowed(mimeType string, allowed []string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), mimeType) {
			return true
		}
	}
	return false
}

var disallowedNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFileName strips directories, traversal sequences and disallowed
// characters from a client-supplied name. Idempotent: sanitizing an already
// sanitized name returns it unchanged.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = disallowedNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" || name == "/" {
		return "file"
	}
	return name
}
