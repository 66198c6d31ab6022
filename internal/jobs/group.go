package jobs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

// allowedExtensions are the page image types accepted in a submission.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// UploadedFile is one submitted page. Key is path-like: its directory part
// names the book and its base name is the page filename.
type UploadedFile struct {
	Key  string
	Data []byte
}

// Allowed reports whether filename has an accepted image extension.
func Allowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// pendingBook is a grouped book whose pages are not yet on disk.
type pendingBook struct {
	book  models.Book
	files [][]byte
}

// splitKey returns the book name and page filename for an upload key.
func splitKey(key string) (string, string) {
	key = strings.ReplaceAll(key, `\`, "/")
	dir, file := path.Split(key)
	dir = strings.Trim(path.Clean("/"+dir), "/")
	return dir, file
}

// group filters files through the allow-list and groups them into books
// ordered by book name, pages ordered by filename. A page filename repeated
// within one book keeps its first occurrence.
func group(files []UploadedFile) []pendingBook {
	byName := make(map[string]map[string][]byte)
	for _, f := range files {
		name, filename := splitKey(f.Key)
		if filename == "" || !Allowed(filename) {
			continue
		}
		pages, ok := byName[name]
		if !ok {
			pages = make(map[string][]byte)
			byName[name] = pages
		}
		if _, dup := pages[filename]; dup {
			continue
		}
		pages[filename] = f.Data
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	books := make([]pendingBook, 0, len(names))
	for _, name := range names {
		pages := byName[name]
		filenames := make([]string, 0, len(pages))
		for filename := range pages {
			filenames = append(filenames, filename)
		}
		sort.Strings(filenames)

		pb := pendingBook{book: models.Book{Name: name, Title: name}}
		for i, filename := range filenames {
			pb.book.Pages = append(pb.book.Pages, models.Page{Filename: filename, Index: i})
			pb.files = append(pb.files, pages[filename])
		}
		books = append(books, pb)
	}
	return books
}

// assignNames fills in book indexes, default titles and job-unique slugs.
// A slug already taken by an earlier book gets "-<book index>" appended.
func assignNames(books []models.Book) {
	taken := make(map[string]bool, len(books))
	for i := range books {
		b := &books[i]
		b.Index = i + 1
		if b.Title == "" {
			b.Title = models.DefaultTitle
		}
		slug := b.Slug
		if slug == "" {
			slug = Slugify(b.Title)
		}
		// A suffixed name can itself belong to an earlier book.
		for taken[strings.ToLower(slug)] {
			slug = fmt.Sprintf("%s-%d", slug, b.Index)
		}
		taken[strings.ToLower(slug)] = true
		b.Slug = slug
	}
}

// Slugify reduces a title to a safe file base name.
func Slugify(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	slug := strings.Trim(sb.String(), "._")
	if slug == "" {
		return models.DefaultTitle
	}
	return slug
}

// ScanDir treats every sub-directory of root as a book and the allowed image
// files directly in root as an untitled book.
func ScanDir(root string) ([]models.Book, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var books []models.Book
	if loose := scanPages(root, entries); len(loose) > 0 {
		books = append(books, models.Book{Pages: loose})
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		children, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		if pages := scanPages(dir, children); len(pages) > 0 {
			books = append(books, models.Book{Name: e.Name(), Title: e.Name(), Pages: pages})
		}
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("no image files under %s: %w", root, models.ErrValidation)
	}
	return books, nil
}

// scanPages relies on os.ReadDir returning entries sorted by filename.
func scanPages(dir string, entries []os.DirEntry) []models.Page {
	var pages []models.Page
	for _, e := range entries {
		if e.IsDir() || !Allowed(e.Name()) {
			continue
		}
		pages = append(pages, models.Page{
			Filename: e.Name(),
			Path:     filepath.Join(dir, e.Name()),
			Index:    len(pages),
		})
	}
	return pages
}
