// Package epub assembles fixed-layout EPUB 3 containers from page images.
package epub

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/bindery/internal/models"
	"github.com/lehigh-university-libraries/bindery/internal/normalize"
)

const (
	MimeType    = "application/epub+zip"
	PackagePath = "OEBPS/content.opf"

	xhtmlMediaType = "application/xhtml+xml"
	ncxMediaType   = "application/x-dtbncx+xml"
)

// ErrNoPages is returned when Build is called with an empty page list.
var ErrNoPages = errors.New("book has no pages")

// Manifest summarizes what a build wrote.
type Manifest struct {
	Identifier string
	Title      string
	CoverID    string
	Items      []Item
	Spine      []string
}

// Builder writes EPUB archives. It is safe for concurrent use.
type Builder struct {
	normalizer *normalize.Normalizer
	logger     *slog.Logger
	language   string
	now        func() time.Time
	newID      func() string
}

func NewBuilder(normalizer *normalize.Normalizer, logger *slog.Logger) *Builder {
	if normalizer == nil {
		normalizer = normalize.New(normalize.Options{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		normalizer: normalizer,
		logger:     logger,
		language:   "en",
		now:        time.Now,
		newID:      func() string { return "urn:uuid:" + uuid.NewString() },
	}
}

// BuildFile writes the archive to path, replacing it only once the build succeeds.
func (b *Builder) BuildFile(ctx context.Context, path, title string, pages []models.Page) (Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Manifest{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".epub-*")
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	manifest, err := b.Build(ctx, tmp, title, pages)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close epub: %w", closeErr)
	}
	if err != nil {
		return Manifest{}, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return Manifest{}, fmt.Errorf("failed to move epub into place: %w", err)
	}
	return manifest, nil
}

// Build writes a complete EPUB for the ordered pages to w. The first page
// doubles as the cover image. Every call gets a fresh identifier.
func (b *Builder) Build(ctx context.Context, w io.Writer, title string, pages []models.Page) (Manifest, error) {
	if len(pages) == 0 {
		return Manifest{}, ErrNoPages
	}
	if title == "" {
		title = models.DefaultTitle
	}

	zw := zip.NewWriter(w)
	modified := b.now().UTC()

	// mimetype must be the first entry, stored uncompressed and without the
	// extended timestamp extra field a non-zero Modified adds.
	if err := writeEntry(zw, "mimetype", []byte(MimeType), zip.Store, time.Time{}); err != nil {
		return Manifest{}, err
	}

	containerXML, err := marshalXML(container{
		Xmlns:   containerNamespace,
		Version: "1.0",
		RootFiles: []rootFile{{
			FullPath:  PackagePath,
			MediaType: "application/oebps-package+xml",
		}},
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to marshal container.xml: %w", err)
	}
	if err := writeEntry(zw, "META-INF/container.xml", containerXML, zip.Deflate, modified); err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		Identifier: b.newID(),
		Title:      title,
	}
	entries := make([]navEntry, 0, len(pages))

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return Manifest{}, err
		}

		data, err := os.ReadFile(page.Path)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to read page %s: %w", page.Filename, err)
		}
		res, err := b.normalizer.Page(data)
		if err != nil {
			return Manifest{}, fmt.Errorf("page %s: %w", page.Filename, err)
		}

		n := i + 1
		imageID := fmt.Sprintf("image-%04d", n)
		imageHref := "images/" + imageID + res.Codec.Ext()
		pageID := fmt.Sprintf("page-%04d", n)
		pageHref := "pages/" + pageID + ".xhtml"
		label := fmt.Sprintf("Page %d", n)

		imageItem := Item{ID: imageID, Href: imageHref, MediaType: res.Codec.MediaType()}
		if i == 0 {
			imageItem.Properties = "cover-image"
			manifest.CoverID = imageID
		}

		if err := writeEntry(zw, "OEBPS/"+imageHref, res.Data, zip.Store, modified); err != nil {
			return Manifest{}, err
		}

		doc, err := render(pageTemplate, pageData{
			Title:     label,
			ImageHref: "../" + imageHref,
			Width:     res.Width,
			Height:    res.Height,
		})
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to render %s: %w", pageHref, err)
		}
		if err := writeEntry(zw, "OEBPS/"+pageHref, doc, zip.Deflate, modified); err != nil {
			return Manifest{}, err
		}

		manifest.Items = append(manifest.Items,
			Item{ID: pageID, Href: pageHref, MediaType: xhtmlMediaType},
			imageItem,
		)
		manifest.Spine = append(manifest.Spine, pageID)
		entries = append(entries, navEntry{Href: pageHref, Label: label})

		b.logger.Debug("Packaged page", "title", title, "page", n, "source", page.Filename, "codec", res.Codec, "width", res.Width, "height", res.Height)
	}

	nav, err := render(navTemplate, navData{Title: title, Entries: entries})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to render nav.xhtml: %w", err)
	}
	if err := writeEntry(zw, "OEBPS/nav.xhtml", nav, zip.Deflate, modified); err != nil {
		return Manifest{}, err
	}

	ncxDoc, err := marshalXML(b.tocNCX(manifest, entries))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to marshal toc.ncx: %w", err)
	}
	if err := writeEntry(zw, "OEBPS/toc.ncx", ncxDoc, zip.Deflate, modified); err != nil {
		return Manifest{}, err
	}

	manifest.Items = append(manifest.Items,
		Item{ID: "nav", Href: "nav.xhtml", MediaType: xhtmlMediaType, Properties: "nav"},
		Item{ID: "ncx", Href: "toc.ncx", MediaType: ncxMediaType},
	)

	opf, err := marshalXML(b.packageDocument(manifest, modified))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to marshal content.opf: %w", err)
	}
	if err := writeEntry(zw, PackagePath, opf, zip.Deflate, modified); err != nil {
		return Manifest{}, err
	}

	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("failed to finish epub archive: %w", err)
	}

	b.logger.Info("Built EPUB", "title", title, "pages", len(pages), "identifier", manifest.Identifier)
	return manifest, nil
}

func (b *Builder) packageDocument(m Manifest, modified time.Time) Package {
	spine := make([]ItemRef, 0, len(m.Spine))
	for _, id := range m.Spine {
		spine = append(spine, ItemRef{IDRef: id})
	}
	return Package{
		Xmlns:            opfNamespace,
		Version:          "3.0",
		UniqueIdentifier: "book-id",
		Prefix:           renditionPrefix,
		Metadata: PackageMetadata{
			XmlnsDC:    dcNamespace,
			Identifier: DCIdentifier{ID: "book-id", Value: m.Identifier},
			Title:      m.Title,
			Language:   b.language,
			Meta: []PackageMeta{
				{Property: "dcterms:modified", Value: modified.Format("2006-01-02T15:04:05Z")},
				{Property: "rendition:layout", Value: "pre-paginated"},
				{Property: "rendition:orientation", Value: "portrait"},
				{Property: "rendition:spread", Value: "none"},
				{Name: "cover", Content: m.CoverID},
			},
		},
		Manifest: PackageManifest{Items: m.Items},
		Spine:    PackageSpine{Toc: "ncx", ItemRefs: spine},
	}
}

func (b *Builder) tocNCX(m Manifest, entries []navEntry) ncx {
	points := make([]navPoint, 0, len(entries))
	for i, e := range entries {
		p := navPoint{
			ID:        fmt.Sprintf("nav-%04d", i+1),
			PlayOrder: i + 1,
			Label:     e.Label,
		}
		p.Content.Src = e.Href
		points = append(points, p)
	}
	return ncx{
		Xmlns:   ncxNamespace,
		Version: "2005-1",
		Head: []ncxMeta{
			{Name: "dtb:uid", Content: m.Identifier},
			{Name: "dtb:depth", Content: "1"},
			{Name: "dtb:totalPageCount", Content: "0"},
			{Name: "dtb:maxPageNumber", Content: "0"},
		},
		DocTitle: m.Title,
		NavMap:   points,
	}
}

func writeEntry(zw *zip.Writer, name string, data []byte, method uint16, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
