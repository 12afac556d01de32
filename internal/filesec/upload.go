package filesec

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"compass.education/internal/obs"
)

// UploadOptions tune one secure upload.
type UploadOptions struct {
	// GenerateUniqueFileName derives the stored name from the content hash
	// and timestamp instead of trusting client-controlled naming.
	GenerateUniqueFileName bool
}

// UploadResult is the composed outcome of validation and scanning.
type UploadResult struct {
	Success    bool             `json:"success"`
	FileName   string           `json:"fileName"`
	FileHash   string           `json:"fileHash"`
	Validation ValidationResult `json:"validation"`
	Scan       ScanResult       `json:"virusScanResult"`
}

// Pipeline composes validation and scanning for uploads.
type Pipeline struct {
	cfg     Config
	scanner Scanner
	now     func() time.Time
}

// NewPipeline constructs a Pipeline. A nil scanner falls back to the built-in
// signature scanner.
func NewPipeline(cfg Config, scanner Scanner) *Pipeline {
	if scanner == nil {
		scanner = NewSignatureScanner()
	}
	return &Pipeline{cfg: cfg, scanner: scanner, now: time.Now}
}

// Config returns the active upload bounds.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// SecureUpload validates then scans the file. Success requires both a valid
// result and a clean scan; failures are surfaced in the structured result,
// not as errors. The returned error covers scanner infrastructure failures
// only, and those fail closed.
func (p *Pipeline) SecureUpload(ctx context.Context, name, mimeType string, content []byte, opts UploadOptions) (UploadResult, error) {
	result := UploadResult{}
	result.Validation = Validate(name, mimeType, content, p.cfg)
	result.FileHash = result.Validation.FileHash
	result.FileName = result.Validation.SanitizedName

	if !result.Validation.IsValid {
		obs.FileRejection("validation")
		return result, nil
	}

	scan, err := p.scanner.Scan(ctx, content)
	if err != nil {
		obs.FileRejection("scan_error")
		return result, fmt.Errorf("filesec: scan: %w", err)
	}
	result.Scan = scan
	if !scan.IsClean {
		obs.FileRejection("malicious")
		result.Validation.IsValid = false
		result.Validation.Errors = append(result.Validation.Errors, ErrMaliciousContent.Error())
		return result, nil
	}

	if opts.GenerateUniqueFileName {
		result.FileName = p.uniqueName(result.Validation)
	}
	result.Success = true
	return result, nil
}

// uniqueName builds a collision-free stored name from the content hash, the
// upload timestamp and a random suffix, keeping the original extension.
func (p *Pipeline) uniqueName(v ValidationResult) string {
	ext := path.Ext(v.SanitizedName)
	hashPart := v.FileHash
	if len(hashPart) > 16 {
		hashPart = hashPart[:16]
	}
	return fmt.Sprintf("%s_%s_%s%s",
		p.now().UTC().Format("20060102T150405"),
		hashPart,
		uuid.NewString()[:8],
		ext,
	)
}
