package images

import (
	"crypto/sha256"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"archpub/internal/config"
	"archpub/pkg/logger"
)

// Info describes a local image that is about to be attached to a page.
type Info struct {
	Path      string
	Filename  string
	Format    string // decoder name: png, jpeg, gif, bmp, tiff, webp
	MediaType string
	Width     int
	Height    int
	Size      int64
	SHA256    string
}

// Processor validates local image files against the configured limits.
type Processor struct {
	config *config.ImageConfig
	logger *logger.Logger
}

func NewProcessor(cfg *config.ImageConfig, log *logger.Logger) *Processor {
	return &Processor{
		config: cfg,
		logger: log,
	}
}

// Check verifies that path is a regular file within the size limit. It does
// not open the file.
func (p *Processor) Check(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to access image file %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("image path is not a regular file: %s", path)
	}

	if p.config != nil && p.config.MaxFileSize > 0 && info.Size() > p.config.MaxFileSize {
		return nil, fmt.Errorf("image file %s exceeds maximum size limit (%d bytes): %d bytes",
			path, p.config.MaxFileSize, info.Size())
	}
	return info, nil
}

// Inspect checks that path is a regular, decodable image within the size and
// format limits and returns its metadata.
func (p *Processor) Inspect(path string) (*Info, error) {
	info, err := p.Check(path)
	if err != nil {
		return nil, err
	}

	ext := extension(path)
	if !p.isFormatSupported(ext) {
		return nil, fmt.Errorf("image format '%s' is not supported for file %s. Supported formats: %v",
			ext, path, p.config.SupportedFormats)
	}

	result, err := decode(path, info)
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.Debug("Validated image file '%s' (%d bytes, %s %dx%d)", path, result.Size, result.Format, result.Width, result.Height)
	}
	return result, nil
}

// Describe returns the upload metadata of any file that passes Check. Files
// outside the format allow-list or without a registered decoder are typed by
// extension, falling back to application/octet-stream.
func (p *Processor) Describe(path string) (*Info, error) {
	info, err := p.Check(path)
	if err != nil {
		return nil, err
	}

	ext := extension(path)
	if p.isFormatSupported(ext) {
		result, err := decode(path, info)
		if err == nil {
			return result, nil
		}
		if p.logger != nil {
			p.logger.Debug("Not decoding '%s' as an image: %v", path, err)
		}
	}

	sum, err := fileHash(path)
	if err != nil {
		return nil, err
	}
	return &Info{
		Path:      path,
		Filename:  AttachmentFilename(path),
		Format:    ext,
		MediaType: mediaTypeByExtension(ext),
		Size:      info.Size(),
		SHA256:    sum,
	}, nil
}

func decode(path string, info os.FileInfo) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	cfg, format, err := image.DecodeConfig(io.TeeReader(f, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	// DecodeConfig only reads the header; hash the remainder too.
	if _, err := io.Copy(hash, f); err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	return &Info{
		Path:      path,
		Filename:  AttachmentFilename(path),
		Format:    format,
		MediaType: MediaType(format),
		Width:     cfg.Width,
		Height:    cfg.Height,
		Size:      info.Size(),
		SHA256:    fmt.Sprintf("%x", hash.Sum(nil)),
	}, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func mediaTypeByExtension(ext string) string {
	if ext != "" {
		if t, _, err := mime.ParseMediaType(mime.TypeByExtension("." + ext)); err == nil {
			return t
		}
	}
	return "application/octet-stream"
}

// isFormatSupported accepts any extension when no allow-list is configured.
func (p *Processor) isFormatSupported(ext string) bool {
	if p.config == nil || len(p.config.SupportedFormats) == 0 {
		return true
	}
	for _, format := range p.config.SupportedFormats {
		if strings.ToLower(format) == ext {
			return true
		}
	}
	return false
}

// AttachmentFilename is the name an image is stored under on the page.
func AttachmentFilename(imagePath string) string {
	return filepath.Base(imagePath)
}

// MediaType maps an image decoder name to its MIME type.
func MediaType(format string) string {
	switch format {
	case "png", "gif", "bmp", "tiff", "webp":
		return "image/" + format
	case "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
