// Package docinfo checks a local study document before it is uploaded.
package docinfo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

// AllowedExtensions lists the upload formats the backend accepts.
var AllowedExtensions = []string{".pdf", ".docx", ".pptx"}

// Info describes a document that passed the pre-flight checks.
type Info struct {
	Path string
	Name string
	Ext  string
	Size int64
	// Pages is set for PDFs whose page tree could be read; zero otherwise.
	Pages int
}

// CheckName validates the file extension, case-insensitively.
func CheckName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(AllowedExtensions, ext) {
		return app_errors.Validationf("unsupported file type %q: only PDF, DOCX and PPTX files are allowed", filepath.Base(name))
	}
	return nil
}

// Inspect validates path and stats it. It does no network I/O.
func Inspect(path string) (Info, error) {
	if err := CheckName(path); err != nil {
		return Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", app_errors.ErrValidation, err)
	}
	if !st.Mode().IsRegular() {
		return Info{}, app_errors.Validationf("%s is not a regular file", path)
	}
	if st.Size() == 0 {
		return Info{}, app_errors.Validationf("%s is empty", path)
	}

	info := Info{
		Path: path,
		Name: filepath.Base(path),
		Ext:  strings.ToLower(filepath.Ext(path)),
		Size: st.Size(),
	}
	if info.Ext == ".pdf" {
		info.Pages = pdfPages(path)
	}
	return info, nil
}

// pdfPages is best effort; the backend does the real parsing.
func pdfPages(path string) (n int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf page count panicked", "path", path, "panic", r)
			n = 0
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		slog.Debug("pdf page count failed", "path", path, "error", err)
		return 0
	}
	defer f.Close()
	return r.NumPage()
}
