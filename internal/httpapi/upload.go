package httpapi

import (
	"io"
	"net/http"

	"compass.education/internal/audit"
	"compass.education/internal/authn"
	"compass.education/internal/filesec"
)

// upload accepts one multipart file, runs it through the secure upload
// pipeline and returns the structured validation outcome either way. Accepted
// and rejected files both leave an audit entry naming the stored file.
func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	if a.uploads == nil {
		respondError(w, http.StatusServiceUnavailable, "Uploads are disabled")
		return
	}

	if err := r.ParseMultipartForm(a.cfg.FileUpload.MaxFileSize + (1 << 20)); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unreadable file content")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(content)
	}

	result, err := a.uploads.SecureUpload(r.Context(), header.Filename, mimeType, content, filesec.UploadOptions{
		GenerateUniqueFileName: true,
	})
	if err != nil {
		// Scanner infrastructure failure: fail closed, tell the client to retry.
		a.auditFile(r, audit.ActionFileRejected, result.FileName)
		respondError(w, http.StatusServiceUnavailable, "File scan unavailable")
		return
	}
	if !result.Success {
		a.auditFile(r, audit.ActionFileRejected, result.FileName)
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	a.auditFile(r, audit.ActionFileAccepted, result.FileName)
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) auditFile(r *http.Request, action, fileName string) {
	ac, _ := authn.FromContext(r.Context())
	rc := audit.ExtractContext(r, ac.UserID())
	rc.SessionID = ac.SessionID
	entry := audit.Entry{
		Action:        action,
		ResourceTable: "uploads",
		ResourceID:    fileName,
	}
	rc.Apply(&entry)
	a.auditor.Log(r.Context(), entry)
}
