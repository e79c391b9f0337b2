package validation

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// FileConstraints defines validation rules for file uploads
type FileConstraints struct {
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
	MaxSize           int64
}

var ImageConstraints = FileConstraints{
	AllowedMimeTypes: map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
		"image/gif":  true,
	},
	AllowedExtensions: map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
		".gif":  true,
	},
	MaxSize: 5 << 20, // 5MB
}

// DetectFile sniffs the content type of an upload and checks it against c.
// The reader is rewound before returning.
func DetectFile(file io.ReadSeeker, filename string, size int64, c FileConstraints) (string, error) {
	if size > c.MaxSize {
		return "", invalid("file", fmt.Sprintf("file too large: maximum size is %d MB", c.MaxSize/(1<<20)))
	}

	// http.DetectContentType looks at no more than 512 bytes
	buffer := make([]byte, 512)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = file.Seek(0, io.SeekStart)
	if err != nil {
		return "", fmt.Errorf("failed to reset file pointer: %w", err)
	}

	detected := http.DetectContentType(buffer[:n])
	if !c.AllowedMimeTypes[detected] {
		return "", invalid("file", fmt.Sprintf("invalid file type (detected: %s)", detected))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !c.AllowedExtensions[ext] {
		return "", invalid("file", fmt.Sprintf("invalid file extension: %s", ext))
	}

	return detected, nil
}
