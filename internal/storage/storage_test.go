package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestReadUploadAcceptsImage(t *testing.T) {
	up, err := ReadUpload(KindImage, bytes.NewReader(pngBytes(t, 10, 10)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", up.ContentType)
	assert.Equal(t, ".png", up.Extension)
}

func TestReadUploadRejects(t *testing.T) {
	_, err := ReadUpload(KindImage, strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrInvalidMIME)

	_, err = ReadUpload(KindAudio, bytes.NewReader(pngBytes(t, 4, 4)))
	assert.ErrorIs(t, err, ErrInvalidMIME)

	_, err = ReadUpload(KindImage, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyFile)

	big := append(pngBytes(t, 2, 2), make([]byte, MaxImageSize)...)
	_, err = ReadUpload(KindImage, bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestEncodeAvatarFits(t *testing.T) {
	url, err := EncodeAvatar(bytes.NewReader(pngBytes(t, 800, 600)))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

// tinyWebP is a 1x1 lossless WebP.
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestEncodeAvatarAcceptsWebP(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)

	up, err := ReadUpload(KindImage, bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "image/webp", up.ContentType)

	url, err := EncodeAvatar(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
}

func TestEncodeAvatarCorruptImage(t *testing.T) {
	// The PNG signature passes sniffing but the body is cut short.
	corrupt := pngBytes(t, 20, 20)[:40]

	_, err := EncodeAvatar(bytes.NewReader(corrupt))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestFileStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "http://localhost:8083/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "../chat_images/c1/a.png", "image/png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8083/files/chat_images/c1/a.png", url)

	got, err := os.ReadFile(filepath.Join(dir, "chat_images", "c1", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestObjectPath(t *testing.T) {
	p := ObjectPath(KindAudio, "c1", ".webm")
	assert.True(t, strings.HasPrefix(p, "voice_messages/c1/"))
	assert.True(t, strings.HasSuffix(p, ".webm"))
}
