package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Image is an uploaded image payload with its declared media type
type Image struct {
	Data        []byte
	ContentType string
}

// MediaType returns the normalized media type, sniffing the payload when
// no content type was declared
func (img Image) MediaType() string {
	contentType := strings.TrimSpace(img.ContentType)
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mediaType
}

// Prepare checks that the payload is an image and converts formats the
// Read API cannot take (HEIC, HEIF, WebP, GIF) to PNG
func (img Image) Prepare() (Image, error) {
	mediaType := img.MediaType()
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, &UnsupportedInputError{ContentType: mediaType}
	}
	if len(img.Data) == 0 {
		return Image{}, &UnsupportedInputError{ContentType: mediaType, Err: errors.New("empty payload")}
	}

	if !needsConversion(img.Data, mediaType) {
		return Image{Data: img.Data, ContentType: mediaType}, nil
	}

	pngData, err := imageToPNG(img.Data, mediaType)
	if err != nil {
		return Image{}, &UnsupportedInputError{ContentType: mediaType, Err: err}
	}
	return Image{Data: pngData, ContentType: "image/png"}, nil
}

func needsConversion(data []byte, mediaType string) bool {
	switch mediaType {
	case "image/webp", "image/gif":
		return true
	}
	return isHEICFormat(data) || isHEICMimeType(mediaType)
}

// imageToPNG decodes any supported image format and re-encodes it as PNG
func imageToPNG(data []byte, mediaType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's standard image package doesn't read HEIC
	if isHEICFormat(data) || isHEICMimeType(mediaType) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat looks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mediaType string) bool {
	return strings.Contains(mediaType, "heic") || strings.Contains(mediaType, "heif")
}
