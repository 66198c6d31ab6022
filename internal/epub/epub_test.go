package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

// opfDoc mirrors the package document for reading it back.
type opfDoc struct {
	Identifier string `xml:"metadata>identifier"`
	Title      string `xml:"metadata>title"`
	Meta       []struct {
		Property string `xml:"property,attr"`
		Name     string `xml:"name,attr"`
		Content  string `xml:"content,attr"`
		Value    string `xml:",chardata"`
	} `xml:"metadata>meta"`
	Items []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

func writePages(t *testing.T, sizes ...image.Point) []models.Page {
	t.Helper()
	dir := t.TempDir()
	pages := make([]models.Page, 0, len(sizes))
	for i, size := range sizes {
		img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				img.Set(x, y, color.RGBA{R: uint8(i * 40), G: 100, B: 200, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		name := fmt.Sprintf("%02d.png", i+1)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
		pages = append(pages, models.Page{Filename: name, Path: path, Index: i})
	}
	return pages
}

func build(t *testing.T, b *Builder, title string, pages []models.Page) (*zip.Reader, Manifest) {
	t.Helper()
	var buf bytes.Buffer
	m, err := b.Build(context.Background(), &buf, title, pages)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr, m
}

func readEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return data
		}
	}
	t.Fatalf("entry %s not found", name)
	return nil
}

func readOPF(t *testing.T, zr *zip.Reader) opfDoc {
	t.Helper()
	var doc opfDoc
	require.NoError(t, xml.Unmarshal(readEntry(t, zr, PackagePath), &doc))
	return doc
}

func TestBuildMimetypeFirstAndStored(t *testing.T) {
	zr, _ := build(t, NewBuilder(nil, nil), "alpha", writePages(t, image.Pt(20, 30)))

	require.NotEmpty(t, zr.File)
	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)
	assert.Empty(t, first.Extra)
	assert.Equal(t, MimeType, string(readEntry(t, zr, "mimetype")))

	count := 0
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildContainerPointsAtPackage(t *testing.T) {
	zr, _ := build(t, NewBuilder(nil, nil), "alpha", writePages(t, image.Pt(20, 30)))

	var c struct {
		RootFiles []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfiles>rootfile"`
	}
	require.NoError(t, xml.Unmarshal(readEntry(t, zr, "META-INF/container.xml"), &c))
	require.Len(t, c.RootFiles, 1)
	assert.Equal(t, PackagePath, c.RootFiles[0].FullPath)
	assert.Equal(t, "application/oebps-package+xml", c.RootFiles[0].MediaType)
}

func TestBuildManifestAndSpine(t *testing.T) {
	pages := writePages(t, image.Pt(20, 30), image.Pt(40, 20), image.Pt(20, 30))
	zr, m := build(t, NewBuilder(nil, nil), "alpha", pages)
	doc := readOPF(t, zr)

	assert.Equal(t, "alpha", doc.Title)
	assert.Equal(t, m.Identifier, doc.Identifier)
	assert.True(t, strings.HasPrefix(doc.Identifier, "urn:uuid:"))

	hrefs := make(map[string]int)
	ids := make(map[string]bool)
	for _, item := range doc.Items {
		hrefs[item.Href]++
		assert.False(t, ids[item.ID], "duplicate manifest id %s", item.ID)
		ids[item.ID] = true
		assert.NotEmpty(t, item.MediaType)
	}

	expectedSpine := make([]string, 0, len(pages))
	for i := range pages {
		pageHref := fmt.Sprintf("pages/page-%04d.xhtml", i+1)
		imageHref := fmt.Sprintf("images/image-%04d.png", i+1)
		assert.Equal(t, 1, hrefs[pageHref], pageHref)
		assert.Equal(t, 1, hrefs[imageHref], imageHref)
		readEntry(t, zr, "OEBPS/"+pageHref)
		readEntry(t, zr, "OEBPS/"+imageHref)
		expectedSpine = append(expectedSpine, fmt.Sprintf("page-%04d", i+1))
	}

	spine := make([]string, 0, len(doc.Spine))
	for _, ref := range doc.Spine {
		spine = append(spine, ref.IDRef)
	}
	assert.Equal(t, expectedSpine, spine)
	assert.Equal(t, expectedSpine, m.Spine)
}

func TestBuildCover(t *testing.T) {
	zr, m := build(t, NewBuilder(nil, nil), "alpha", writePages(t, image.Pt(20, 30), image.Pt(20, 30)))
	doc := readOPF(t, zr)

	assert.Equal(t, "image-0001", m.CoverID)
	var coverMeta string
	for _, meta := range doc.Meta {
		if meta.Name == "cover" {
			coverMeta = meta.Content
		}
	}
	assert.Equal(t, "image-0001", coverMeta)

	for _, item := range doc.Items {
		if item.ID == "image-0001" {
			assert.Equal(t, "cover-image", item.Properties)
		} else {
			assert.NotEqual(t, "cover-image", item.Properties)
		}
	}
}

func TestBuildFixedLayoutAndNavigation(t *testing.T) {
	zr, _ := build(t, NewBuilder(nil, nil), "alpha & omega", writePages(t, image.Pt(20, 30), image.Pt(20, 30)))
	doc := readOPF(t, zr)

	props := make(map[string]string)
	for _, meta := range doc.Meta {
		if meta.Property != "" {
			props[meta.Property] = meta.Value
		}
	}
	assert.Equal(t, "pre-paginated", props["rendition:layout"])
	assert.NotEmpty(t, props["dcterms:modified"])

	nav := string(readEntry(t, zr, "OEBPS/nav.xhtml"))
	assert.Contains(t, nav, `epub:type="toc"`)
	assert.Contains(t, nav, "alpha &amp; omega")
	assert.Contains(t, nav, `href="pages/page-0002.xhtml"`)

	ncx := string(readEntry(t, zr, "OEBPS/toc.ncx"))
	assert.Contains(t, ncx, doc.Identifier)
	assert.Contains(t, ncx, "Page 2")
}

func TestBuildPageDocumentHasNoFixedImageSize(t *testing.T) {
	zr, _ := build(t, NewBuilder(nil, nil), "alpha", writePages(t, image.Pt(20, 30)))

	page := string(readEntry(t, zr, "OEBPS/pages/page-0001.xhtml"))
	assert.Contains(t, page, `src="../images/image-0001.png"`)
	assert.Contains(t, page, "max-width: 100%")

	var body struct {
		Img struct {
			Width  string `xml:"width,attr"`
			Height string `xml:"height,attr"`
			Src    string `xml:"src,attr"`
		} `xml:"body>div>img"`
	}
	dec := xml.NewDecoder(strings.NewReader(page))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	require.NoError(t, dec.Decode(&body))
	assert.NotEmpty(t, body.Img.Src)
	assert.Empty(t, body.Img.Width)
	assert.Empty(t, body.Img.Height)

	// The fixed-layout viewport carries the page size instead.
	assert.Contains(t, page, `<meta name="viewport" content="width=20, height=30"/>`)
}

func TestBuildFreshIdentifierEachRun(t *testing.T) {
	b := NewBuilder(nil, nil)
	pages := writePages(t, image.Pt(20, 30))

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		_, m := build(t, b, "alpha", pages)
		assert.False(t, seen[m.Identifier], "identifier reused: %s", m.Identifier)
		seen[m.Identifier] = true
	}
}

func TestBuildDefaultsTitle(t *testing.T) {
	zr, m := build(t, NewBuilder(nil, nil), "", writePages(t, image.Pt(20, 30)))
	assert.Equal(t, models.DefaultTitle, m.Title)
	assert.Equal(t, models.DefaultTitle, readOPF(t, zr).Title)
}

func TestBuildErrors(t *testing.T) {
	b := NewBuilder(nil, nil)

	_, err := b.Build(context.Background(), io.Discard, "alpha", nil)
	assert.ErrorIs(t, err, ErrNoPages)

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0644))
	_, err = b.Build(context.Background(), io.Discard, "alpha", []models.Page{{Filename: "bad.png", Path: bad}})
	assert.Error(t, err)

	_, err = b.Build(context.Background(), io.Discard, "alpha", []models.Page{{Filename: "gone.png", Path: filepath.Join(t.TempDir(), "gone.png")}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, io.Discard, "alpha", writePages(t, image.Pt(20, 30)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildFile(t *testing.T) {
	b := NewBuilder(nil, nil)
	out := filepath.Join(t.TempDir(), "nested", "alpha.epub")

	m, err := b.BuildFile(context.Background(), out, "alpha", writePages(t, image.Pt(20, 30)))
	require.NoError(t, err)
	assert.NotEmpty(t, m.Identifier)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	assert.Equal(t, "mimetype", zr.File[0].Name)

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be cleaned up")
}

func TestBuildFileFailureLeavesNoOutput(t *testing.T) {
	b := NewBuilder(nil, nil)
	out := filepath.Join(t.TempDir(), "alpha.epub")

	_, err := b.BuildFile(context.Background(), out, "alpha", nil)
	assert.ErrorIs(t, err, ErrNoPages)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
