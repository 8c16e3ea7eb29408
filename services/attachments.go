package services

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"grievance-management-api/apperr"
	"grievance-management-api/models"
)

// Upload is one file received from a client. Open may be called more than once.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

type UploadLimits struct {
	MaxFileSize int64
	MaxFiles    int
}

// allowedUploadTypes maps accepted extensions to the MIME types a sniffed file
// may carry. Legacy .doc files sniff as OLE containers and .docx files may
// sniff as plain zip archives.
var allowedUploadTypes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
}

type checkedUpload struct {
	upload   Upload
	mimeType string
}

// checkUploads validates every file before anything is written.
func checkUploads(uploads []Upload, limits UploadLimits) ([]checkedUpload, error) {
	if len(uploads) > limits.MaxFiles {
		return nil, apperr.Validation(
			fmt.Sprintf("Too many files. Maximum is %d", limits.MaxFiles),
			apperr.FieldError{Field: "attachments", Message: fmt.Sprintf("at most %d files are allowed", limits.MaxFiles)},
		)
	}

	checked := make([]checkedUpload, 0, len(uploads))
	for _, up := range uploads {
		name := filepath.Base(up.Name)
		if up.Size > limits.MaxFileSize {
			return nil, apperr.Validation(
				fmt.Sprintf("File %s is too large. Maximum size is %s", name, formatBytes(limits.MaxFileSize)),
				apperr.FieldError{Field: "attachments", Message: name + " exceeds the maximum file size"},
			)
		}
		if up.Size == 0 {
			return nil, apperr.Validation("File "+name+" is empty",
				apperr.FieldError{Field: "attachments", Message: name + " is empty"})
		}

		ext := strings.ToLower(filepath.Ext(name))
		allowed, ok := allowedUploadTypes[ext]
		if !ok {
			return nil, invalidFileType(name)
		}

		mimeType, err := sniff(up)
		if err != nil {
			return nil, apperr.Validation("Could not read "+name,
				apperr.FieldError{Field: "attachments", Message: err.Error()})
		}
		if !mimeMatches(mimeType, allowed) {
			return nil, invalidFileType(name)
		}
		checked = append(checked, checkedUpload{upload: up, mimeType: mimeType.String()})
	}
	return checked, nil
}

func sniff(up Upload) (*mimetype.MIME, error) {
	r, err := up.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return mimetype.DetectReader(r)
}

func mimeMatches(m *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if m.Is(a) {
			return true
		}
	}
	return false
}

func invalidFileType(name string) *apperr.Error {
	return apperr.Validation(
		"Invalid file type. Only JPEG, PNG, PDF, DOC, and DOCX files are allowed",
		apperr.FieldError{Field: "attachments", Message: name + " has an unsupported file type"},
	)
}

func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// storeUploads writes checked files and builds their attachment rows. On
// failure every file written so far is removed.
func storeUploads(files FileStore, checked []checkedUpload, uploaderID uint, now time.Time) ([]models.GrievanceAttachment, []string, error) {
	attachments := make([]models.GrievanceAttachment, 0, len(checked))
	stored := make([]string, 0, len(checked))
	for _, c := range checked {
		r, err := c.upload.Open()
		if err != nil {
			files.Remove(stored...)
			return nil, nil, apperr.Internal("Failed to read uploaded file", err)
		}
		name, err := files.Save(c.upload.Name, r)
		_ = r.Close()
		if err != nil {
			files.Remove(stored...)
			return nil, nil, apperr.Internal("Failed to store uploaded file", err)
		}
		stored = append(stored, name)
		attachments = append(attachments, models.GrievanceAttachment{
			FileName:   filepath.Base(c.upload.Name),
			FilePath:   name,
			FileSize:   c.upload.Size,
			FileType:   c.mimeType,
			UploadedBy: &uploaderID,
			UploadedAt: now,
		})
	}
	return attachments, stored, nil
}
