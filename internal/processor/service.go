// Package processor turns raw generations into transparent PNGs and multi-size icons.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"

	"logo-forge/internal/apperr"
	"logo-forge/internal/naming"
	"logo-forge/internal/storage/local"

	"github.com/disintegration/imaging"
)

type Options struct {
	RemoveBackground bool
	CreateICO        bool
}

type Failure struct {
	File  string `json:"file"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type BatchResult struct {
	Processed []string  `json:"processed"`
	Icons     []string  `json:"icons"`
	Failures  []Failure `json:"failures,omitempty"`
}

type Service struct {
	store   *local.Store
	remover BackgroundRemover
	ico     *ICOConverter
}

func NewService(store *local.Store, remover BackgroundRemover, ico *ICOConverter) *Service {
	if ico == nil {
		ico = NewICOConverter(nil)
	}
	return &Service{store: store, remover: remover, ico: ico}
}

// NobgName is the processed file derived from a raw image.
func NobgName(rawName string) string {
	return naming.Stem(rawName) + "_nobg.png"
}

// IconName is the icon file derived from a raw image.
func IconName(rawName string) string {
	return naming.Stem(rawName) + ".ico"
}

// RemoveBackground writes processed/{stem}_nobg.png from raw/{rawName}.
func (s *Service) RemoveBackground(ctx context.Context, rawName string) (string, error) {
	if s.remover == nil {
		return "", apperr.Processing("remove background", errors.New("no background remover configured"))
	}
	img, err := s.decode(local.Raw, rawName)
	if err != nil {
		return "", err
	}

	log.Printf("Removing background from %s", rawName)
	out, err := s.remover.RemoveBackground(ctx, img)
	if err != nil {
		return "", apperr.Processing("remove background "+rawName, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return "", apperr.Processing("encode "+rawName, err)
	}
	name := NobgName(rawName)
	if err := s.store.Put(ctx, local.Processed, name, buf.Bytes()); err != nil {
		return "", apperr.Internal(err)
	}
	log.Printf("Saved background-removed image: processed/%s", name)
	return name, nil
}

// ConvertICO writes icons/{stem}.ico, preferring the background-removed variant as source.
func (s *Service) ConvertICO(ctx context.Context, rawName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	bucket, source := s.iconSource(rawName)
	img, err := s.decode(bucket, source)
	if err != nil {
		return "", err
	}

	log.Printf("Converting %s/%s to ICO", bucket, source)
	data, err := s.ico.Convert(img)
	if err != nil {
		return "", apperr.Processing("convert ico "+rawName, err)
	}
	if sizes, err := ICOSizes(data); err != nil {
		log.Printf("Warning: icon for %s failed verification: %v", rawName, err)
	} else {
		log.Printf("Icon for %s contains sizes %v", rawName, sizes)
	}

	name := IconName(rawName)
	if err := s.store.Put(ctx, local.Icons, name, data); err != nil {
		return "", apperr.Internal(err)
	}
	return name, nil
}

// ProcessBatch runs background removal over every file, then icon conversion over every
// file. Per-file failures are collected and never stop the batch.
func (s *Service) ProcessBatch(ctx context.Context, names []string, opts Options) BatchResult {
	result := BatchResult{Processed: []string{}, Icons: []string{}}

	if opts.RemoveBackground {
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			out, err := s.RemoveBackground(ctx, name)
			if err != nil {
				log.Printf("Warning: background removal failed for %s: %v", name, err)
				result.Failures = append(result.Failures, Failure{File: name, Stage: "remove_background", Error: err.Error()})
				continue
			}
			result.Processed = append(result.Processed, out)
		}
	}

	if opts.CreateICO {
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			out, err := s.ConvertICO(ctx, name)
			if err != nil {
				log.Printf("Warning: ICO conversion failed for %s: %v", name, err)
				result.Failures = append(result.Failures, Failure{File: name, Stage: "convert_ico", Error: err.Error()})
				continue
			}
			result.Icons = append(result.Icons, out)
		}
	}
	return result
}

func (s *Service) iconSource(rawName string) (local.Bucket, string) {
	if nobg := NobgName(rawName); s.store.Exists(local.Processed, nobg) {
		return local.Processed, nobg
	}
	if s.store.Exists(local.Processed, rawName) {
		return local.Processed, rawName
	}
	return local.Raw, rawName
}

func (s *Service) decode(b local.Bucket, name string) (image.Image, error) {
	data, err := s.store.Get(b, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, local.ErrInvalidName) {
			return nil, apperr.NotFound("image %s", name)
		}
		return nil, apperr.Internal(err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Processing(fmt.Sprintf("decode %s/%s", b, name), err)
	}
	return img, nil
}
