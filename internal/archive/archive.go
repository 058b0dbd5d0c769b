// Package archive bundles the outputs of a run for download.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// Bundle writes a gzip-compressed tar of the named files in dir to dest.
// Entries are flattened to their base names. Names absent from dir are
// skipped. It returns the names actually archived.
func Bundle(dir string, names []string, dest string) ([]string, error) {
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dest, err)
	}
	added, err := write(f, dir, names)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("archive: %s: %w", dest, err)
	}
	return added, nil
}

func write(w io.Writer, dir string, names []string) ([]string, error) {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)

	var added []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		base := filepath.Base(n)
		if seen[base] {
			continue
		}
		ok, err := addFile(tw, filepath.Join(dir, base), base)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Printf("archive: %s not present, skipped", base)
			continue
		}
		seen[base] = true
		added = append(added, base)
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return added, nil
}

func addFile(tw *tar.Writer, path, name string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !st.Mode().IsRegular() {
		return false, nil
	}
	hdr, err := tar.FileInfoHeader(st, "")
	if err != nil {
		return false, err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return false, err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return false, err
	}
	return true, nil
}

// ReadLog returns up to limit bytes from the end of a log file. A cut
// inside a multi-byte character drops its partial bytes. A limit of zero
// reads the whole file.
func ReadLog(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("archive: open log: %w", err)
	}
	defer f.Close()

	cut := false
	if limit > 0 {
		st, err := f.Stat()
		if err != nil {
			return "", err
		}
		if st.Size() > limit {
			if _, err := f.Seek(st.Size()-limit, io.SeekStart); err != nil {
				return "", err
			}
			cut = true
		}
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("archive: read log: %w", err)
	}
	for i := 0; cut && i < utf8.UTFMax-1 && len(b) > 0 && !utf8.RuneStart(b[0]); i++ {
		b = b[1:]
	}
	return string(b), nil
}
