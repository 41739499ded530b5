// ABOUTME: Attachment validation and encoding for message files
// ABOUTME: Enforces the 1 MiB size cap and produces self-contained base64 payloads

package attach

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/parley-chat/parley/internal/store"
)

// MaxSizeBytes is the largest accepted attachment, boundary inclusive.
const MaxSizeBytes = 1 << 20 // 1 MiB

// ErrTooLarge rejects attachments over MaxSizeBytes. It is a validation
// error: user-visible, non-fatal, and raised before any network or
// persistence call.
var ErrTooLarge = fmt.Errorf("file too large (max %d bytes)", MaxSizeBytes)

// File is the raw input to Prepare.
type File struct {
	Name     string
	MimeType string // optional; inferred from the name when empty
	Size     int64
	Content  io.Reader
}

// Prepare validates the file and encodes it into a transferable
// Attachment. The payload is a data URL carrying the base64-encoded
// content, so the attachment is self-contained. PreviewKind is "image"
// iff the MIME type starts with "image/".
//
// Encoding honours ctx: a cancelled context aborts the read and the
// partial result is discarded, so navigation away from a view mid-encode
// leaks nothing.
func Prepare(ctx context.Context, file File) (*store.Attachment, error) {
	if file.Size > MaxSizeBytes {
		return nil, ErrTooLarge
	}

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(file.Name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	content, err := readAll(ctx, file.Content, MaxSizeBytes)
	if err != nil {
		return nil, err
	}

	previewKind := "file"
	if strings.HasPrefix(mimeType, "image/") {
		previewKind = "image"
	}

	payload := fmt.Sprintf("data:%s;base64,%s",
		mimeType, base64.StdEncoding.EncodeToString(content))

	return &store.Attachment{
		Name:        file.Name,
		MimeType:    mimeType,
		SizeBytes:   int64(len(content)),
		Payload:     payload,
		PreviewKind: previewKind,
	}, nil
}

// readAll reads at most max+1 bytes, checking ctx between chunks so a
// torn-down caller stops paying for the encode. Declared sizes are not
// trusted; a reader that yields more than max bytes is rejected.
func readAll(ctx context.Context, r io.Reader, max int64) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if int64(buf.Len()) > max {
				return nil, ErrTooLarge
			}
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
	}
}
