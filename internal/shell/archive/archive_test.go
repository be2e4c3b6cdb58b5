package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
}

func moduleTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "mod", "views"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "mod", "__manifest__.py"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "mod", "views", "a.xml"), []byte("<odoo/>"), 0o600))
	require.NoError(t, os.Symlink("__manifest__.py", filepath.Join(src, "mod", "link.py")))
	return src
}

func TestCopyTree(t *testing.T) {
	src := moduleTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, CopyTree(src, dst))

	info, err := os.Stat(filepath.Join(dst, "mod", "views", "a.xml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(dst, "mod", "link.py"))
	require.NoError(t, err)
	assert.Equal(t, "__manifest__.py", link)

	assert.Error(t, CopyTree(filepath.Join(src, "mod", "__manifest__.py"), dst))
}

func TestTarDir(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TarDir(moduleTree(t), &buf))

	files := readTar(t, &buf)
	assert.Contains(t, files, "mod/")
	assert.Contains(t, files, "mod/views/")
	assert.Equal(t, "<odoo/>", files["mod/views/a.xml"])
	assert.Equal(t, "", files["mod/link.py"])
}

func TestTarPath(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, TarPath(filepath.Join(moduleTree(t), "mod"), "prod", &buf))

		files := readTar(t, &buf)
		assert.Contains(t, files, "prod/")
		assert.Equal(t, "{}", files["prod/__manifest__.py"])
		assert.Equal(t, "<odoo/>", files["prod/views/a.xml"])
	})

	t.Run("file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "dump.sql")
		require.NoError(t, os.WriteFile(p, []byte("SELECT 1;"), 0o644))

		var buf bytes.Buffer
		require.NoError(t, TarPath(p, "import.sql", &buf))
		assert.Equal(t, map[string]string{"import.sql": "SELECT 1;"}, readTar(t, &buf))
	})
}

func TestFirstEntry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TarPath(filepath.Join(moduleTree(t), "mod"), "prod", &buf))

	name, err := FirstEntry(&buf)
	require.NoError(t, err)
	assert.Equal(t, "prod", name)

	var empty bytes.Buffer
	require.NoError(t, tar.NewWriter(&empty).Close())
	_, err = FirstEntry(&empty)
	assert.Error(t, err)
}

func TestRebase(t *testing.T) {
	var in bytes.Buffer
	require.NoError(t, TarPath(filepath.Join(moduleTree(t), "mod"), "prod", &in))

	var out bytes.Buffer
	require.NoError(t, Rebase(&in, &out, "staging"))

	files := readTar(t, &out)
	assert.Contains(t, files, "staging/")
	assert.Equal(t, "<odoo/>", files["staging/views/a.xml"])
	for name := range files {
		assert.NotContains(t, name, "prod")
	}
}

func TestGzipFileRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prod.dump.tar.gz")
	payload := bytes.Repeat([]byte("odooghost "), 1000)

	require.NoError(t, WriteGzipFile(p, bytes.NewReader(payload)))
	assert.True(t, IsGzipTar(p))

	rc, err := OpenGzipFile(p)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	plain := filepath.Join(t.TempDir(), "plain.sql")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))
	_, err = OpenGzipFile(plain)
	assert.Error(t, err)
	assert.False(t, IsGzipTar(plain))
}
