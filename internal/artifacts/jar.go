package artifacts

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// entryTime is stamped on every jar entry so repackaging identical inputs
// yields identical bytes and therefore identical content hashes.
var entryTime = time.Date(1980, time.February, 1, 0, 0, 0, 0, time.UTC)

const manifestPath = "META-INF/MANIFEST.MF"

// Manifest holds the main attributes written to META-INF/MANIFEST.MF.
type Manifest struct {
	Title          string
	Version        string
	SourceRevision string
}

// Bytes renders the manifest in the jar manifest format.
func (m Manifest) Bytes() []byte {
	var b strings.Builder
	b.WriteString("Manifest-Version: 1.0\r\n")
	b.WriteString("Created-By: relpub\r\n")
	if m.Title != "" {
		b.WriteString("Implementation-Title: " + m.Title + "\r\n")
	}
	if m.Version != "" {
		b.WriteString("Implementation-Version: " + m.Version + "\r\n")
	}
	if m.SourceRevision != "" {
		b.WriteString("Source-Revision: " + m.SourceRevision + "\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// writeJar packages srcDir (may be "" for a manifest-only jar) into dest.
// The jar is written to a temporary file and renamed into place.
func writeJar(dest, srcDir string, manifest Manifest) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".jar-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	zw := zip.NewWriter(tmp)
	if err := addEntry(zw, manifestPath, manifest.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if srcDir != "" {
		if err := addTree(zw, srcDir); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

func addEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: entryTime})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// addTree adds every regular file below root in lexical order. An existing
// manifest in the tree is replaced by the generated one.
func addTree(zw *zip.Writer, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			if name == "." {
				return nil
			}
			_, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: entryTime})
			return err
		}
		if !d.Type().IsRegular() || strings.EqualFold(name, manifestPath) {
			return nil
		}
		return copyEntry(zw, name, path)
	})
}

func copyEntry(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: entryTime})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}
