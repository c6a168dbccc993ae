package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/zipdiff/pkg/upload/fakestore"
)

func makeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"zipdiff", "--no-color"}, args...))
	return out.String(), err
}

// builds returns an old and new build with one added directory, one
// updated file, one deleted file and one unchanged file.
func builds(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	oldDir := filepath.Join(base, "build-old")
	newDir := filepath.Join(base, "build-new")
	makeTree(t, oldDir, map[string]string{
		"index.html": "v1",
		"keep.txt":   "k",
		"gone.txt":   "g",
	})
	makeTree(t, newDir, map[string]string{
		"index.html":     "v2",
		"keep.txt":       "k",
		"blog/post.html": "p",
		".DS_Store":      "meta",
	})
	return oldDir, newDir
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestBuild(t *testing.T) {
	oldDir, newDir := builds(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := runApp(t,
		"build", "--engine", "native", "-o", out, oldDir, newDir,
	)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "index.html"))
	assert.FileExists(t, filepath.Join(out, "blog", "post.html"))
	assert.NoFileExists(t, filepath.Join(out, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(out, ".DS_Store"))

	assert.Equal(t,
		[]string{"blog/", "blog/post.html", "index.html"},
		zipNames(t, out+".zip"),
	)

	assert.Contains(t, stdout, "Diffing directories... Done")
	assert.Contains(t, stdout, "Copying over changed files... Done")
	assert.Contains(t, stdout, "The following files were deleted:\n  gone.txt\n")
	assert.Contains(t, stdout,
		"The following files were changed:\n  blog\n  index.html\n",
	)
	assert.Contains(t, stdout, "All changed files have been copied to")
}

func TestBuildQuiet(t *testing.T) {
	oldDir, newDir := builds(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := runApp(t,
		"build", "--engine", "native", "-q", "-o", out, oldDir, newDir,
	)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Diffing directories")
	assert.Contains(t, stdout, "The following files were changed:")
}

func TestBuildNoDifferences(t *testing.T) {
	oldDir := t.TempDir()
	newDir := t.TempDir()
	makeTree(t, oldDir, map[string]string{"a": "1"})
	makeTree(t, newDir, map[string]string{"a": "1", "Thumbs.db": "x"})
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := runApp(t,
		"build", "--engine", "native", "-o", out, oldDir, newDir,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No files were different")
	assert.NoDirExists(t, out)
}

func TestBuildDryRun(t *testing.T) {
	oldDir, newDir := builds(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := runApp(t,
		"build", "--engine", "native", "--dry-run", "-o", out,
		oldDir, newDir,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "would be deleted:\n  gone.txt\n")
	assert.NoDirExists(t, out)
	assert.NoFileExists(t, out+".zip")
}

func TestBuildTarGzFromConfig(t *testing.T) {
	oldDir, newDir := builds(t)
	base := t.TempDir()
	cfgPath := filepath.Join(base, "zipdiff.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"format: tar.gz\n"+
			"engine: native\n"+
			"output: "+filepath.Join(base, "delta")+"\n"+
			"exclude:\n  - \"blo*\"\n",
	), 0644))

	_, err := runApp(t, "--config", cfgPath, "build", oldDir, newDir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(base, "delta.tar.gz"))
	assert.FileExists(t, filepath.Join(base, "delta", "index.html"))
	assert.NoDirExists(t, filepath.Join(base, "delta", "blog"))
}

func TestBuildClean(t *testing.T) {
	oldDir, newDir := builds(t)
	out := filepath.Join(t.TempDir(), "out")
	makeTree(t, out, map[string]string{"stale.txt": "old run"})

	_, err := runApp(t,
		"build", "--engine", "native", "--clean", "-o", out, oldDir, newDir,
	)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(out, "stale.txt"))
	assert.NotContains(t, zipNames(t, out+".zip"), "stale.txt")
}

func TestBuildUpload(t *testing.T) {
	oldDir, newDir := builds(t)
	out := filepath.Join(t.TempDir(), "out")
	srv := fakestore.New("tok")
	defer srv.Close()

	stdout, err := runApp(t,
		"build", "--engine", "native", "-o", out,
		"--upload-url", srv.URL(),
		"--upload-token", "tok",
		"--upload-prefix", "site",
		oldDir, newDir,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Uploading... Done")
	assert.Equal(t,
		[]string{"site/out.manifest.json", "site/out.zip"},
		srv.Keys(),
	)

	obj, ok := srv.Get("site/out.manifest.json")
	require.True(t, ok)
	var manifest map[string][]string
	require.NoError(t, json.Unmarshal(obj.Body, &manifest))
	assert.Equal(t, map[string][]string{
		"added":   {"blog"},
		"updated": {"index.html"},
		"deleted": {"gone.txt"},
	}, manifest)

	archive, err := os.ReadFile(out + ".zip")
	require.NoError(t, err)
	zipObj, _ := srv.Get("site/out.zip")
	assert.Equal(t, archive, zipObj.Body)
}

func TestBuildUploadRejected(t *testing.T) {
	oldDir, newDir := builds(t)
	srv := fakestore.New("tok")
	defer srv.Close()

	_, err := runApp(t,
		"build", "--engine", "native",
		"-o", filepath.Join(t.TempDir(), "out"),
		"--upload-url", srv.URL(),
		"--upload-token", "wrong",
		oldDir, newDir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestBuildRejectsOutputInsideBuild(t *testing.T) {
	oldDir, newDir := builds(t)

	_, err := runApp(t,
		"build", "--engine", "native",
		"-o", filepath.Join(newDir, "build_for_upload"),
		oldDir, newDir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside build directory")
}

func TestBuildRejectsOutputContainingBuild(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	oldDir := filepath.Join(out, "old")
	newDir := filepath.Join(out, "new")
	makeTree(t, oldDir, map[string]string{"index.html": "v1"})
	makeTree(t, newDir, map[string]string{"index.html": "v2"})

	_, err := runApp(t,
		"build", "--engine", "native", "--clean", "-o", out,
		oldDir, newDir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains build directory")
	assert.FileExists(t, filepath.Join(oldDir, "index.html"))
	assert.FileExists(t, filepath.Join(newDir, "index.html"))
}

func TestBuildExcludesInsideAddedDirectory(t *testing.T) {
	oldDir, newDir := builds(t)
	makeTree(t, newDir, map[string]string{
		"blog/Thumbs.db":   "thumbs",
		"blog/app.js.map":  "map",
		"blog/js/app.js":   "js",
		"blog/js/lib.map":  "map",
		"blog/js/lib.html": "lib",
	})
	out := filepath.Join(t.TempDir(), "out")

	_, err := runApp(t,
		"build", "--engine", "native", "--exclude", "**/*.map",
		"-o", out, oldDir, newDir,
	)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"blog/",
		"blog/js/",
		"blog/js/app.js",
		"blog/js/lib.html",
		"blog/post.html",
		"index.html",
	}, zipNames(t, out+".zip"))
	assert.NoFileExists(t, filepath.Join(out, "blog", "Thumbs.db"))
	assert.NoFileExists(t, filepath.Join(out, "blog", "app.js.map"))
}

func TestBuildMissingDirs(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t,
		"build", filepath.Join(dir, "nope"), dir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not exist")

	_, err = runApp(t, "build", dir)
	assert.ErrorContains(t, err, "usage")
}

func TestUnknownEngine(t *testing.T) {
	oldDir, newDir := builds(t)
	_, err := runApp(t, "diff", "--engine", "rsync", oldDir, newDir)
	assert.ErrorContains(t, err, "unknown engine")
}

func TestDiffText(t *testing.T) {
	oldDir, newDir := builds(t)

	stdout, err := runApp(t, "diff", "--engine", "native", oldDir, newDir)
	require.NoError(t, err)
	assert.Equal(t,
		"  + blog\n"+
			"  ~ index.html\n"+
			"  - gone.txt\n"+
			"---\n"+
			"1 added, 1 updated, 1 deleted\n",
		stdout,
	)
}

func TestDiffJSON(t *testing.T) {
	oldDir, newDir := builds(t)

	stdout, err := runApp(t,
		"diff", "--engine", "native", "--json",
		"--exclude", "gone.txt",
		oldDir, newDir,
	)
	require.NoError(t, err)

	var got diffJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, diffJSON{
		Added:   []string{"blog"},
		Updated: []string{"index.html"},
		Deleted: []string{},
		Summary: diffSummary{AddedCount: 1, UpdatedCount: 1, Total: 2},
	}, got)
}

func TestDiffIdentical(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"a": "1"})

	stdout, err := runApp(t, "diff", "--engine", "native", dir, dir)
	require.NoError(t, err)
	assert.Equal(t, "No differences.\n", stdout)
}

func TestDoctorNative(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "zipdiff.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("engine: native\n"), 0644))

	stdout, err := runApp(t, "--config", cfgPath, "doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Engine: native")
	assert.Contains(t, stdout, "All checks passed.")
}

func TestDoctorEngineFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PATH", "")
	t.Setenv("ZIPDIFF_ENGINE", "native")

	stdout, err := runApp(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Engine: native")
	assert.Contains(t, stdout, "diff: missing")
	assert.Contains(t, stdout, "All checks passed.")
}

func TestDoctorEngineFlagOverridesConfig(t *testing.T) {
	t.Setenv("PATH", "")
	cfgPath := filepath.Join(t.TempDir(), "zipdiff.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("engine: diff\n"), 0644))

	_, err := runApp(t, "--config", cfgPath, "doctor")
	assert.ErrorContains(t, err, "diff not found")

	stdout, err := runApp(t,
		"--config", cfgPath, "doctor", "--engine", "native",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Engine: native")

	_, err = runApp(t,
		"--config", cfgPath, "doctor", "--engine", "rsync",
	)
	assert.ErrorContains(t, err, "unknown engine")
}

func TestDoctorBadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "zipdiff.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("engine: rsync\n"), 0644))

	stdout, err := runApp(t, "--config", cfgPath, "doctor")
	require.Error(t, err)
	assert.Contains(t, stdout, "Config: FAIL")
}

func TestVersion(t *testing.T) {
	stdout, err := runApp(t, "version")
	require.NoError(t, err)
	assert.Equal(t, appVersion+"\n", stdout)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "2.0 KB", humanBytes(2048))
	assert.Equal(t, "1.5 MB", humanBytes(3<<19))
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
