package pack

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(body)
	}
	return out
}

func readTarGz(t *testing.T, data []byte) map[string]string {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gr)
	out := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(body)
	}
	return out
}

var staged = map[string]string{
	"index.html":       "home",
	"static/js/app.js": "js",
	"static/.DS_Store": "meta",
	".DS_Store":        "meta",
	"blog/post.html":   "post",
}

func TestArchiveZip(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, staged)

	var buf bytes.Buffer
	n, err := Archive(dir, &buf, FormatZip)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, map[string]string{
		"blog/":            "",
		"static/":          "",
		"static/js/":       "",
		"index.html":       "home",
		"static/js/app.js": "js",
		"blog/post.html":   "post",
	}, readZip(t, buf.Bytes()))
}

func TestArchiveTarGz(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, staged)

	var buf bytes.Buffer
	n, err := Archive(dir, &buf, FormatTarGz)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, map[string]string{
		"blog/":            "",
		"static/":          "",
		"static/js/":       "",
		"index.html":       "home",
		"static/js/app.js": "js",
		"blog/post.html":   "post",
	}, readTarGz(t, buf.Bytes()))
}

func TestArchiveTarGzDeterministic(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, staged)

	var a, b bytes.Buffer
	_, err := Archive(dir, &a, FormatTarGz)
	require.NoError(t, err)
	_, err = Archive(dir, &b, FormatTarGz)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestArchiveEmptyDir(t *testing.T) {
	var buf bytes.Buffer
	n, err := Archive(t.TempDir(), &buf, FormatZip)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, readZip(t, buf.Bytes()))
}

func TestArchiveFile(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"a.txt": "a"})
	dest := filepath.Join(t.TempDir(), "build_for_upload.zip")

	n, err := ArchiveFile(dir, dest, FormatZip)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.txt": "a"}, readZip(t, data))
}

func TestArchiveFileMissingDirRemovesDest(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	_, err := ArchiveFile(
		filepath.Join(t.TempDir(), "missing"), dest, FormatZip,
	)
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestArchiveUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	_, err := Archive(t.TempDir(), &buf, Format("rar"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":        FormatZip,
		"zip":     FormatZip,
		".ZIP":    FormatZip,
		"tar.gz":  FormatTarGz,
		".tar.gz": FormatTarGz,
		"tgz":     FormatTarGz,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("7z")
	assert.Error(t, err)
}

func TestFormatExt(t *testing.T) {
	assert.Equal(t, ".zip", FormatZip.Ext())
	assert.Equal(t, ".tar.gz", FormatTarGz.Ext())
}
