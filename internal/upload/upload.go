// Package upload is the file input boundary: it converts uploaded image
// files into the base64 payload and data URL the workflow engine consumes.
package upload

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"

	"promptpix/internal/domain"
)

// maxFileSize caps a single uploaded image at 15 MiB.
const maxFileSize = 15 << 20

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// File is a converted upload.
type File struct {
	Filename string
	MimeType string
	Base64   string
	DataURL  string
}

// FromMultipart reads one multipart file and converts it, rejecting
// non-image content and oversized payloads.
func FromMultipart(header *multipart.FileHeader) (*File, error) {
	if header.Size > maxFileSize {
		return nil, fmt.Errorf("%w: file %q exceeds the size limit", domain.ErrInvalidInput, header.Filename)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%w: file %q exceeds the size limit", domain.ErrInvalidInput, header.Filename)
	}

	mimeType := sniffMime(data)
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, mimeType)
	}

	payload := base64.StdEncoding.EncodeToString(data)
	return &File{
		Filename: header.Filename,
		MimeType: mimeType,
		Base64:   payload,
		DataURL:  domain.BuildDataURL(mimeType, payload),
	}, nil
}

// sniffMime identifies the image type from magic bytes. Only the formats the
// workflow accepts are recognized; everything else reports octet-stream.
func sniffMime(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
