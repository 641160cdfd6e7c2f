// Package packaging bundles produced segments into a single archive.
package packaging

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultArchiveName is written into the output root.
const DefaultArchiveName = "output_videos.zip"

// ZipPackager writes deflate-compressed zip archives. Entry names are the
// file paths relative to root, using forward slashes.
type ZipPackager struct {
	logger *slog.Logger
}

func NewZipPackager(logger *slog.Logger) *ZipPackager {
	return &ZipPackager{logger: logger}
}

// Archive writes files into archivePath. The archive is built under a
// temporary name and renamed once complete, so a failed run leaves no
// partial archive behind.
func (p *ZipPackager) Archive(ctx context.Context, root string, files []string, archivePath string) error {
	tmp := archivePath + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	written, err := p.write(ctx, out, root, files)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close archive: %w", closeErr)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, archivePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize archive: %w", err)
	}

	if p.logger != nil {
		p.logger.Info("archive written",
			"path", archivePath,
			"files", len(files),
			"input_bytes", written,
			"input_size", humanize.Bytes(uint64(written)),
		)
	}
	return nil
}

func (p *ZipPackager) write(ctx context.Context, w io.Writer, root string, files []string) (int64, error) {
	zw := zip.NewWriter(w)
	var total int64

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return total, err
		}

		name, err := EntryName(root, file)
		if err != nil {
			zw.Close()
			return total, err
		}

		n, err := addFile(zw, file, name)
		total += n
		if err != nil {
			zw.Close()
			return total, fmt.Errorf("add %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return total, fmt.Errorf("finish archive: %w", err)
	}
	return total, nil
}

func addFile(zw *zip.Writer, path, name string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	header.Name = name
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	return io.Copy(entry, f)
}

// EntryName returns the archive entry for path, relative to root.
func EntryName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%s is not under %s: %w", path, root, err)
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("%s is not under %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}
