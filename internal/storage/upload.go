package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Kind selects the validation rules for an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

const (
	MaxImageSize = 5 << 20
	MaxAudioSize = 10 << 20
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrInvalidMIME  = errors.New("file type not allowed")
	ErrEmptyFile    = errors.New("file is empty")
)

var allowedMIMEs = map[Kind][]string{
	KindImage: {"image/jpeg", "image/png", "image/gif", "image/webp"},
	KindAudio: {"audio/webm", "video/webm", "audio/ogg", "audio/mpeg", "audio/wav", "audio/mp4", "video/mp4", "audio/x-m4a"},
}

var maxSizes = map[Kind]int64{
	KindImage: MaxImageSize,
	KindAudio: MaxAudioSize,
}

// Upload is a validated file ready for Put.
type Upload struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Reader returns the payload.
func (u Upload) Reader() io.Reader { return bytes.NewReader(u.Data) }

// ReadUpload reads r up to the size limit of kind and sniffs the content type.
func ReadUpload(kind Kind, r io.Reader) (Upload, error) {
	limit, ok := maxSizes[kind]
	if !ok {
		return Upload{}, fmt.Errorf("unknown upload kind %q", kind)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return Upload{}, ErrEmptyFile
	}
	if int64(len(data)) > limit {
		return Upload{}, ErrFileTooLarge
	}

	m := mimetype.Detect(data)
	if !isAllowed(m, kind) {
		return Upload{}, fmt.Errorf("%w: %s", ErrInvalidMIME, m.String())
	}
	return Upload{Data: data, ContentType: m.String(), Extension: m.Extension()}, nil
}

func isAllowed(m *mimetype.MIME, kind Kind) bool {
	for _, a := range allowedMIMEs[kind] {
		if m.Is(a) {
			return true
		}
	}
	return false
}

// ObjectPath is where a chat attachment is stored.
func ObjectPath(kind Kind, chatID, ext string) string {
	dir := "chat_images"
	if kind == KindAudio {
		dir = "voice_messages"
	}
	return path.Join(dir, chatID, uuid.NewString()+ext)
}
