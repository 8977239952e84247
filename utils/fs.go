package utils

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const zstdExt = ".zst"

type Fs struct {
	AppFs afero.Fs
}

func NewFs(appFs afero.Fs) Fs {
	return Fs{AppFs: appFs}
}

// WriteJSON writes data as indented JSON, creating parent directories.
// Paths ending with ".zst" are zstd-compressed.
func (fs Fs) WriteJSON(filePath string, data interface{}) error {
	if err := fs.AppFs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return xerrors.Errorf("unable to create a directory: %w", err)
	}

	f, err := fs.AppFs.Create(filePath)
	if err != nil {
		return xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}

	if !strings.HasSuffix(filePath, zstdExt) {
		if _, err = f.Write(b); err != nil {
			return xerrors.Errorf("failed to save a file: %w", err)
		}
		return nil
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return xerrors.Errorf("failed to create a zstd writer: %w", err)
	}
	if _, err = zw.Write(b); err != nil {
		zw.Close()
		return xerrors.Errorf("failed to save a file: %w", err)
	}
	if err = zw.Close(); err != nil {
		return xerrors.Errorf("failed to flush a zstd stream: %w", err)
	}
	return nil
}
