// Package repository is the query and lifecycle layer over stored images.
package repository

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/models"
	"logo-forge/internal/naming"
	"logo-forge/internal/storage/local"
)

const imageURLPrefix = "/api/v1/image/"

var listedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"svg":  true,
	"webp": true,
}

var processable = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

type Repository struct {
	store *local.Store
	now   func() time.Time
}

func New(store *local.Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

// List returns raw then processed images, newest first. Ties keep directory order.
func (r *Repository) List() ([]models.GeneratedImage, error) {
	images := []models.GeneratedImage{}
	for _, b := range []local.Bucket{local.Raw, local.Processed} {
		names, err := r.store.List(b)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		for _, name := range names {
			meta := naming.Decode(name)
			if !listedExtensions[strings.ToLower(meta.Extension)] {
				continue
			}
			images = append(images, r.describe(b, name, meta))
		}
	}

	// "unknown" sorts above every date string; clients rely on this ordering.
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CreatedAt > images[j].CreatedAt
	})
	return images, nil
}

func (r *Repository) describe(b local.Bucket, name string, meta naming.Metadata) models.GeneratedImage {
	img := models.GeneratedImage{
		ID:           naming.Stem(name),
		Filename:     name,
		URL:          imageURLPrefix + name,
		ThumbnailURL: imageURLPrefix + name,
		PromptID:     meta.PromptID,
		Model:        meta.Model,
		Provider:     meta.Provider,
		CreatedAt:    meta.CreatedAt,
		Extension:    meta.Extension,
		Status:       "success",
		Type:         models.ImageTypeRaw,
	}
	if b == local.Processed {
		img.Type = models.ImageTypeProcessed
	}
	if info, err := r.store.Stat(b, name); err == nil {
		img.SizeMB = toMB(info.Size())
	}
	return img
}

// Open resolves filename to a path, looking in raw first and then processed.
func (r *Repository) Open(filename string) (string, error) {
	b, err := r.Locate(filename)
	if err != nil {
		return "", err
	}
	return r.store.Path(b, filename)
}

// Locate reports which bucket holds filename.
func (r *Repository) Locate(filename string) (local.Bucket, error) {
	if err := local.ValidName(filename); err != nil {
		return "", apperr.NewValidation("Invalid filename", err.Error())
	}
	for _, b := range []local.Bucket{local.Raw, local.Processed} {
		if r.store.Exists(b, filename) {
			return b, nil
		}
	}
	return "", apperr.NotFound("image %s", filename)
}

// Delete moves the image and its derived files into trash. Nothing is ever purged.
func (r *Repository) Delete(ctx context.Context, filename string) (models.DeleteResult, error) {
	src, err := r.Locate(filename)
	if err != nil {
		return models.DeleteResult{}, err
	}

	ts := naming.Timestamp(r.now())
	stem := naming.Stem(filename)
	ext := filepath.Ext(filename)
	trashName := fmt.Sprintf("%s_%s%s", stem, ts, ext)

	trashPath := local.UniquePath(filepath.Join(r.store.TrashDir(), trashName))
	if err := r.store.MoveTo(ctx, src, filename, trashPath); err != nil {
		return models.DeleteResult{}, apperr.Internal(err)
	}
	result := models.DeleteResult{
		Success:       true,
		Message:       "Image moved to trash as " + filepath.Base(trashPath),
		TrashLocation: r.store.Rel(trashPath),
		Moved:         []string{r.store.Rel(trashPath)},
	}

	siblings := []struct {
		bucket local.Bucket
		name   string
		dest   string
	}{
		{local.Processed, stem + "_nobg.png", fmt.Sprintf("processed_%s_nobg_%s.png", stem, ts)},
		{local.Icons, stem + ".ico", fmt.Sprintf("icon_%s_%s.ico", stem, ts)},
	}
	if src == local.Raw {
		siblings = append([]struct {
			bucket local.Bucket
			name   string
			dest   string
		}{{local.Processed, filename, "processed_" + trashName}}, siblings...)
	}

	for _, s := range siblings {
		if !r.store.Exists(s.bucket, s.name) {
			continue
		}
		dest := local.UniquePath(filepath.Join(r.store.TrashDir(), s.dest))
		if err := r.store.MoveTo(ctx, s.bucket, s.name, dest); err != nil {
			log.Printf("Warning: failed to move %s/%s to trash: %v", s.bucket, s.name, err)
			continue
		}
		result.Moved = append(result.Moved, r.store.Rel(dest))
	}

	log.Printf("Moved %s to trash (%d files)", filename, len(result.Moved))
	return result, nil
}

// Archive moves every stored file into archive/{timestamp}. Raw files land at the
// snapshot root, processed and icon files in sub-folders of the same name.
func (r *Repository) Archive(ctx context.Context) (models.ArchiveResult, error) {
	dir := local.UniquePath(filepath.Join(r.store.ArchiveDir(), naming.Timestamp(r.now())))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ArchiveResult{}, apperr.Internal(fmt.Errorf("create archive directory: %w", err))
	}

	count := 0
	for _, b := range local.Buckets {
		names, err := r.store.List(b)
		if err != nil {
			return models.ArchiveResult{}, apperr.Internal(err)
		}
		destDir := dir
		if b != local.Raw {
			destDir = filepath.Join(dir, string(b))
		}
		for _, name := range names {
			if err := r.store.MoveTo(ctx, b, name, filepath.Join(destDir, name)); err != nil {
				return models.ArchiveResult{}, apperr.Internal(err)
			}
			count++
		}
	}

	log.Printf("Archived %d files to %s", count, dir)
	return models.ArchiveResult{
		Success:       true,
		Message:       fmt.Sprintf("Archived %d files", count),
		ArchivedCount: count,
		ArchivePath:   r.store.Rel(dir),
	}, nil
}

// Stats summarises the raw generations.
func (r *Repository) Stats() (models.ImageStats, error) {
	stats := models.ImageStats{
		ByProvider: map[string]int{},
		ByModel:    map[string]int{},
		ByPrompt:   map[string]int{},
		ByDate:     map[string]int{},
	}
	names, err := r.store.List(local.Raw)
	if err != nil {
		return stats, apperr.Internal(err)
	}

	var bytes int64
	for _, name := range names {
		meta := naming.Decode(name)
		if !listedExtensions[strings.ToLower(meta.Extension)] {
			continue
		}
		stats.TotalImages++
		stats.ByProvider[meta.Provider]++
		stats.ByModel[meta.Model]++
		stats.ByPrompt[meta.PromptID]++

		date := meta.CreatedAt
		if len(date) >= 10 && date != naming.Unknown {
			date = date[:10]
		}
		stats.ByDate[date]++

		if info, err := r.store.Stat(local.Raw, name); err == nil {
			bytes += info.Size()
		}
	}
	stats.TotalSizeMB = toMB(bytes)
	return stats, nil
}

// ResolveRaw maps a selection of filenames or ids onto raw files that can be
// post-processed. Unknown entries are dropped.
func (r *Repository) ResolveRaw(selection []string) ([]string, error) {
	if len(selection) == 0 {
		return nil, apperr.NewValidation("No images selected")
	}
	wanted := make(map[string]bool, len(selection))
	for _, s := range selection {
		wanted[s] = true
		wanted[naming.Stem(s)] = true
	}
	names, err := r.store.List(local.Raw)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	var out []string
	for _, name := range names {
		if !processable[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if wanted[name] || wanted[naming.Stem(name)] {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, apperr.NewValidation("No valid images found for processing")
	}
	return out, nil
}

// Zip writes the selected images, plus their processed and icon variants, as a ZIP
// archive. Selections may be filenames or ids (stems).
func (r *Repository) Zip(w io.Writer, selection []string) (int, error) {
	if len(selection) == 0 {
		return 0, apperr.NewValidation("No images selected")
	}
	wanted := make(map[string]bool, len(selection))
	for _, s := range selection {
		wanted[naming.Stem(s)] = true
	}

	matches := func(b local.Bucket, name string) bool {
		stem := naming.Stem(name)
		if b == local.Processed {
			return wanted[stem] || wanted[strings.TrimSuffix(stem, "_nobg")]
		}
		return wanted[stem]
	}

	zw := zip.NewWriter(w)
	count := 0
	for _, b := range local.Buckets {
		names, err := r.store.List(b)
		if err != nil {
			return count, apperr.Internal(err)
		}
		for _, name := range names {
			if !matches(b, name) {
				continue
			}
			entry := name
			if b != local.Raw {
				entry = string(b) + "/" + name
			}
			if err := r.addToZip(zw, b, name, entry); err != nil {
				return count, apperr.Internal(err)
			}
			count++
		}
	}
	if err := zw.Close(); err != nil {
		return count, apperr.Internal(err)
	}
	return count, nil
}

func (r *Repository) addToZip(zw *zip.Writer, b local.Bucket, name, entry string) error {
	path, err := r.store.Path(b, name)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", entry, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("zip copy %s: %w", entry, err)
	}
	return nil
}

func toMB(size int64) float64 {
	return math.Round(float64(size)/(1024*1024)*100) / 100
}
