package pack

import (
	"archive/tar"
	"archive/zip"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "zip":
		return FormatZip, nil
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	}
	return "", fmt.Errorf("unknown archive format %q (want zip or tar.gz)", s)
}

// Ext is the file extension, with leading dot, for archives of format f.
func (f Format) Ext() string {
	return "." + string(f)
}

// skipNames are never written to an archive.
var skipNames = map[string]bool{
	".DS_Store": true,
}

// Archive writes every regular file under dir to w in the given format.
// Entry names are slash-separated paths relative to dir, written in sorted
// order. It returns the number of files archived.
func Archive(dir string, w io.Writer, format Format) (int, error) {
	files, dirs, err := collect(dir)
	if err != nil {
		return 0, err
	}
	switch format {
	case FormatZip:
		return packZip(dir, files, dirs, w)
	case FormatTarGz:
		return packTar(dir, files, dirs, w)
	}
	return 0, fmt.Errorf("unknown archive format %q", format)
}

// ArchiveFile archives dir into the file at dest, replacing it.
func ArchiveFile(dir, dest string, format Format) (int, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := Archive(dir, f, format)
	closeErr := f.Close()
	if err != nil {
		os.Remove(dest)
		return 0, err
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close %s: %w", dest, closeErr)
	}
	return n, nil
}

func collect(dir string) (files, dirs []string, err error) {
	err = filepath.WalkDir(
		dir,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if skipNames[d.Name()] {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				dirs = append(dirs, rel)
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, rel)
			}
			return nil
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}

func packZip(
	dir string,
	files, dirs []string,
	w io.Writer,
) (int, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, d := range dirs {
		hdr := &zip.FileHeader{Name: d + "/", Method: zip.Store}
		hdr.SetMode(fs.ModeDir | 0755)
		if _, err := zw.CreateHeader(hdr); err != nil {
			zw.Close()
			return 0, fmt.Errorf("write dir header: %w", err)
		}
	}

	for _, rel := range files {
		if err := addFileToZip(zw, dir, rel); err != nil {
			zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish zip: %w", err)
	}
	return len(files), nil
}

func addFileToZip(zw *zip.Writer, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", rel, err)
	}
	hdr.Name = rel
	hdr.Method = zip.Deflate

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("write header %s: %w", rel, err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("write body %s: %w", rel, err)
	}
	return nil
}

func packTar(
	dir string,
	files, dirs []string,
	w io.Writer,
) (int, error) {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	for _, d := range dirs {
		err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     d + "/",
			Mode:     0755,
			ModTime:  time.Time{},
		})
		if err != nil {
			return 0, fmt.Errorf("write dir header: %w", err)
		}
	}

	for _, rel := range files {
		if err := addFileToTar(tw, dir, rel); err != nil {
			return 0, err
		}
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("finish tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return 0, fmt.Errorf("finish gzip: %w", err)
	}
	return len(files), nil
}

func addFileToTar(tw *tar.Writer, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	hdr := &tar.Header{
		Name:    rel,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: time.Time{},
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", rel, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write body %s: %w", rel, err)
	}
	return nil
}
