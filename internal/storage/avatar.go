package storage

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	AvatarMaxInput  = 5 << 20
	AvatarMaxOutput = 500 << 10
	avatarSide      = 400
	avatarQuality   = 80
)

var (
	ErrAvatarTooLarge = errors.New("avatar too large after compression")
	// ErrInvalidImage means the bytes sniffed as an allowed image type but
	// could not be decoded.
	ErrInvalidImage = errors.New("image could not be decoded")
)

// EncodeAvatar shrinks an image to fit 400x400, re-encodes it as JPEG and returns
// it inline as a data URL. Avatars are never uploaded to the object store.
func EncodeAvatar(r io.Reader) (string, error) {
	up, err := ReadUpload(KindImage, r)
	if err != nil {
		return "", err
	}
	img, err := imaging.Decode(bytes.NewReader(up.Data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	img = imaging.Fit(img, avatarSide, avatarSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(avatarQuality)); err != nil {
		return "", fmt.Errorf("encode avatar: %w", err)
	}
	if buf.Len() > AvatarMaxOutput {
		return "", ErrAvatarTooLarge
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
