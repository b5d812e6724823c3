package assembler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerybot/gallerybot/internal/fetch"
	"github.com/gallerybot/gallerybot/internal/models"
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

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// imageServer serves a fixed payload per path and 404s everything else.
func imageServer(payloads map[string][]byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := payloads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
}

func newAssembler() *Assembler {
	return New(fetch.NewClient(fetch.Options{}), Options{FetchRetries: 1})
}

func relaxedConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func TestAssembleAllSupported(t *testing.T) {
	server := imageServer(map[string][]byte{
		"/1.png": pngBytes(t, 100, 50),
		"/2.jpg": jpegBytes(t, 80, 40),
	})
	defer server.Close()

	images := []models.GalleryImage{
		{URL: server.URL + "/1.png", Format: "png"},
		{URL: server.URL + "/2.jpg", Format: "jpg"},
	}

	var events []models.ProgressEvent
	doc, err := newAssembler().Assemble(context.Background(), images, func(ev models.ProgressEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	count, err := api.PageCount(bytes.NewReader(doc), relaxedConf())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NotEmpty(t, events)
	assert.Equal(t, models.PhaseSaving, events[len(events)-1].Phase)
}

func TestAssembleSkipsFailedFetchKeepsOrder(t *testing.T) {
	server := imageServer(map[string][]byte{
		"/a.png": pngBytes(t, 100, 50),
		"/c.png": pngBytes(t, 30, 60),
		// /b.png is missing and fails with a 404
	})
	defer server.Close()

	images := []models.GalleryImage{
		{URL: server.URL + "/a.png", Format: "png"},
		{URL: server.URL + "/b.png", Format: "png"},
		{URL: server.URL + "/c.png", Format: "png"},
	}

	var errEvents int
	doc, err := newAssembler().Assemble(context.Background(), images, func(ev models.ProgressEvent) {
		if ev.Phase == models.PhaseError {
			errEvents++
			assert.Equal(t, 2, ev.Current, "only the middle image should fail")
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, errEvents)

	// Page dimensions prove both the count and the A-then-C ordering.
	dims, err := api.PageDims(bytes.NewReader(doc), relaxedConf())
	require.NoError(t, err)
	require.Len(t, dims, 2)
	assert.InDelta(t, 100, dims[0].Width, 0.5)
	assert.InDelta(t, 50, dims[0].Height, 0.5)
	assert.InDelta(t, 30, dims[1].Width, 0.5)
	assert.InDelta(t, 60, dims[1].Height, 0.5)
}

func TestAssembleAllUnsupported(t *testing.T) {
	server := imageServer(map[string][]byte{
		"/1.gif": {0x47, 0x49, 0x46},
		"/2.gif": {0x47, 0x49, 0x46},
	})
	defer server.Close()

	images := []models.GalleryImage{
		{URL: server.URL + "/1.gif", Format: "gif"},
		{URL: server.URL + "/2.gif", Format: "gif"},
	}

	var events []models.ProgressEvent
	doc, err := newAssembler().Assemble(context.Background(), images, func(ev models.ProgressEvent) {
		events = append(events, ev)
	})
	require.ErrorIs(t, err, ErrEmptyDocument)
	assert.Nil(t, doc)
	require.NotEmpty(t, events)
	assert.Equal(t, models.PhaseError, events[len(events)-1].Phase)
}

func TestAssembleWebPRoundTrip(t *testing.T) {
	webpData, err := os.ReadFile("testdata/pixel.webp")
	require.NoError(t, err)

	emb, err := convertWebP(webpData)
	require.NoError(t, err)

	server := imageServer(map[string][]byte{"/p.webp": webpData})
	defer server.Close()

	images := []models.GalleryImage{{URL: server.URL + "/p.webp", Format: "webp"}}
	doc, err := newAssembler().Assemble(context.Background(), images, nil)
	require.NoError(t, err)

	dims, err := api.PageDims(bytes.NewReader(doc), relaxedConf())
	require.NoError(t, err)
	require.Len(t, dims, 1)
	assert.InDelta(t, float64(emb.width), dims[0].Width, 0.5)
	assert.InDelta(t, float64(emb.height), dims[0].Height, 0.5)
}

func TestAssembleTruncatesToCap(t *testing.T) {
	payloads := map[string][]byte{}
	var images []models.GalleryImage
	for i := 0; i < MaxImages+3; i++ {
		path := fmt.Sprintf("/%d.png", i)
		payloads[path] = pngBytes(t, 10, 10)
	}
	server := imageServer(payloads)
	defer server.Close()
	for i := 0; i < MaxImages+3; i++ {
		images = append(images, models.GalleryImage{
			URL:    server.URL + fmt.Sprintf("/%d.png", i),
			Format: "png",
		})
	}

	var maxTotal int
	doc, err := newAssembler().Assemble(context.Background(), images, func(ev models.ProgressEvent) {
		if ev.Total > maxTotal {
			maxTotal = ev.Total
		}
	})
	require.NoError(t, err)
	assert.Equal(t, MaxImages, maxTotal)

	count, err := api.PageCount(bytes.NewReader(doc), relaxedConf())
	require.NoError(t, err)
	assert.Equal(t, MaxImages, count)
}

func TestAppendPageUsesNativeDimensions(t *testing.T) {
	first, err := prepare("png", pngBytes(t, 120, 40))
	require.NoError(t, err)
	second, err := prepare("png", pngBytes(t, 33, 77))
	require.NoError(t, err)

	conf := relaxedConf()
	doc, err := appendPage(nil, first, conf)
	require.NoError(t, err)
	doc, err = appendPage(doc, second, conf)
	require.NoError(t, err)

	dims, err := api.PageDims(bytes.NewReader(doc), relaxedConf())
	require.NoError(t, err)
	require.Len(t, dims, 2)
	assert.InDelta(t, 120, dims[0].Width, 0.5)
	assert.InDelta(t, 40, dims[0].Height, 0.5)
	assert.InDelta(t, 33, dims[1].Width, 0.5)
	assert.InDelta(t, 77, dims[1].Height, 0.5)
}

func TestPrepareUnsupportedFormat(t *testing.T) {
	_, err := prepare("bmp", []byte("whatever"))
	assert.ErrorIs(t, err, errUnsupportedFormat)
}

func TestPrepareCorruptImage(t *testing.T) {
	_, err := prepare("png", []byte("not a png"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errUnsupportedFormat)
}
