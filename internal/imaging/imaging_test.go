package imaging_test

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/editbench/internal/imaging"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestComposeResizesOverlay(t *testing.T) {
	base := solid(8, 6, color.NRGBA{R: 255, A: 255})
	overlay := imaging.Placeholder(4, 3)
	overlay.SetNRGBA(0, 0, color.NRGBA{B: 255, A: 255})

	out := imaging.Compose(base, overlay)
	w, h := imaging.Size(out)
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, h)

	// Fully transparent overlay areas leave the base untouched.
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(7, 5))
	// The opaque overlay pixel covers the top-left corner after scaling.
	c := out.NRGBAAt(0, 0)
	assert.Greater(t, c.B, uint8(128))
	assert.Equal(t, uint8(255), c.A)
}

func TestPlaceholderIsTransparent(t *testing.T) {
	p := imaging.Placeholder(3, 2)
	w, h := imaging.Size(p)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, color.NRGBA{}, p.NRGBAAt(1, 1))
}

func TestDataURLRoundTrip(t *testing.T) {
	url, err := imaging.DataURL(solid(2, 2, color.NRGBA{G: 200, A: 255}))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(5, 4, color.NRGBA{A: 255})))
	require.NoError(t, f.Close())

	img, err := imaging.Load(path)
	require.NoError(t, err)
	w, h := imaging.Size(img)
	assert.Equal(t, 5, w)
	assert.Equal(t, 4, h)

	_, err = imaging.Load(filepath.Join(dir, "missing.png"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = imaging.Load(bad)
	assert.Error(t, err)
}
