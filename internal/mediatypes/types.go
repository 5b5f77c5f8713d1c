package mediatypes

import (
	"net/url"
	"path"
	"strings"
)

// Format is a stored image encoding.
type Format string

const (
	// FormatJPEG is the default stored encoding.
	FormatJPEG Format = "jpg"
	// FormatPNG keeps transparency.
	FormatPNG Format = "png"
	// FormatWebP is stored as lossy WebP.
	FormatWebP Format = "webp"
)

// DefaultExtension is used when no safe extension can be determined.
const DefaultExtension = "jpg"

// SafeExtensions maps lowercase extensions without the leading dot to whether
// originals may be stored under them.
var SafeExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// MimeTypes maps safe extensions to their MIME types.
var MimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

var mimeExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// extensionOf returns the lowercase extension of a file name or path without
// the leading dot.
func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// SafeExtension picks the storage extension for an asset. The file name is
// consulted first, then the path component of the URI, then the MIME type.
// Anything outside the whitelist falls back to DefaultExtension.
func SafeExtension(fileName, uri, mimeType string) string {
	if ext := extensionOf(fileName); SafeExtensions[ext] {
		return ext
	}
	if uri != "" {
		p := uri
		if u, err := url.Parse(uri); err == nil && u.Path != "" {
			p = u.Path
		}
		if ext := extensionOf(p); SafeExtensions[ext] {
			return ext
		}
	}
	if ext, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return DefaultExtension
}

// FormatOf returns the encoding used for a safe extension.
func FormatOf(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	default:
		return FormatJPEG
	}
}

// GetMimeType returns the MIME type for an extension with or without the
// leading dot. Returns "application/octet-stream" if it is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImageFile reports whether a file name carries a safe image extension.
func IsImageFile(name string) bool {
	return SafeExtensions[extensionOf(name)]
}
