// Package export serializes a prompt for client-side download in one of
// three formats: plain text, a JSON wrapper, or a Markdown code block.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"promptpix/internal/domain"
)

// Format enumerates the supported export formats.
type Format string

const (
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// NormalizeFormat sanitizes free-form input into a supported format.
func NormalizeFormat(format string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(format))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, format)
	}
}

// Document is a rendered export ready to be served as a download.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Render produces the export document for a prompt.
func Render(prompt string, format Format) (*Document, error) {
	base := "prompt_" + time.Now().UTC().Format(time.RFC3339)
	switch format {
	case FormatJSON:
		content, err := json.MarshalIndent(map[string]string{"prompt": prompt}, "", "  ")
		if err != nil {
			return nil, err
		}
		return &Document{Filename: base + ".json", ContentType: "application/json", Content: content}, nil
	case FormatMarkdown:
		content := fmt.Sprintf("# AI Image Prompt\n\n```\n%s\n```", prompt)
		return &Document{Filename: base + ".md", ContentType: "text/markdown", Content: []byte(content)}, nil
	case FormatText:
		return &Document{Filename: base + ".txt", ContentType: "text/plain", Content: []byte(prompt)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, format)
	}
}
