package artifacts

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

func fixture(t *testing.T) (coordinate.Coordinate, Inputs) {
	t.Helper()
	root := t.TempDir()
	classes := filepath.Join(root, "build", "classes", "com", "beust")
	require.NoError(t, os.MkdirAll(classes, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(classes, "JCommander.class"), []byte{0xCA, 0xFE, 0xBA, 0xBE}, 0o600))

	src := filepath.Join(root, "src", "main", "java")
	require.NoError(t, os.MkdirAll(src, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "JCommander.java"), []byte("class JCommander {}"), 0o600))

	coord, err := coordinate.New("com.beust", "jcommander", "1.79")
	require.NoError(t, err)
	return coord, Inputs{
		CompiledOutput: filepath.Join(root, "build", "classes"),
		SourceTree:     src,
		DocOutput:      filepath.Join(root, "build", "docs", "javadoc"), // never built
		StagingDir:     filepath.Join(root, "staging"),
	}
}

func TestBuildFullSet(t *testing.T) {
	coord, in := fixture(t)
	set, err := NewBuilder(config.Example().Project, nil).Build(context.Background(), coord, in, Inclusion{IncludeSources: true, IncludeJavadoc: true})
	require.NoError(t, err)

	kinds := make([]Kind, 0, len(set.Artifacts))
	for _, a := range set.Artifacts {
		kinds = append(kinds, a.Kind)
		assert.Len(t, a.SHA256, 64)
		assert.Positive(t, a.Size)
	}
	assert.Equal(t, []Kind{KindPrimary, KindSources, KindJavadoc, KindPOM}, kinds)

	primary := set.Primary()
	assert.Equal(t, "com/beust/jcommander/1.79/jcommander-1.79.jar", primary.RemotePath(coord))
	names := jarEntries(t, primary.Path)
	assert.Contains(t, names, "META-INF/MANIFEST.MF")
	assert.Contains(t, names, "com/beust/JCommander.class")

	javadoc, ok := set.Get(KindJavadoc)
	require.True(t, ok)
	assert.Equal(t, []string{"META-INF/MANIFEST.MF"}, jarEntries(t, javadoc.Path), "missing javadoc input yields manifest-only jar")
	assert.Equal(t, "com/beust/jcommander/1.79/jcommander-1.79-javadoc.jar", javadoc.RemotePath(coord))

	p, _ := set.Get(KindPOM)
	assert.Equal(t, "com/beust/jcommander/1.79/jcommander-1.79.pom", p.RemotePath(coord))
}

func TestBuildOmitsExcludedClassifiers(t *testing.T) {
	coord, in := fixture(t)
	set, err := NewBuilder(config.ProjectConfig{}, nil).Build(context.Background(), coord, in, Inclusion{})
	require.NoError(t, err)
	_, hasSources := set.Get(KindSources)
	_, hasJavadoc := set.Get(KindJavadoc)
	assert.False(t, hasSources)
	assert.False(t, hasJavadoc)
	assert.Len(t, set.Artifacts, 2)
}

func TestMissingPrimaryIsArtifactError(t *testing.T) {
	coord, in := fixture(t)
	in.CompiledOutput = filepath.Join(t.TempDir(), "nope.jar")
	for _, inc := range []Inclusion{{}, {IncludeSources: true, IncludeJavadoc: true}} {
		_, err := NewBuilder(config.ProjectConfig{}, nil).Build(context.Background(), coord, in, inc)
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArtifact))
		assert.True(t, ferrors.HasSeverity(err, ferrors.SeverityFatal))
	}
}

func TestJarInputUsedAsIs(t *testing.T) {
	coord, in := fixture(t)
	jar := filepath.Join(t.TempDir(), "prebuilt.jar")
	require.NoError(t, writeJar(jar, "", Manifest{Title: "prebuilt"}))
	in.CompiledOutput = jar

	set, err := NewBuilder(config.ProjectConfig{}, nil).Build(context.Background(), coord, in, Inclusion{})
	require.NoError(t, err)
	assert.Equal(t, jar, set.Primary().Path)
}

func TestNonJarFileRejected(t *testing.T) {
	coord, in := fixture(t)
	txt := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))
	in.CompiledOutput = txt
	_, err := NewBuilder(config.ProjectConfig{}, nil).Build(context.Background(), coord, in, Inclusion{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArtifact))
}

func TestPackagingIsDeterministic(t *testing.T) {
	coord, in := fixture(t)
	b := NewBuilder(config.ProjectConfig{}, nil)
	first, err := b.Build(context.Background(), coord, in, Inclusion{IncludeSources: true})
	require.NoError(t, err)
	second, err := b.Build(context.Background(), coord, in, Inclusion{IncludeSources: true})
	require.NoError(t, err)
	assert.Equal(t, first.Primary().SHA256, second.Primary().SHA256)
}

func TestManifestBytes(t *testing.T) {
	m := Manifest{Title: "jcommander", Version: "1.79", SourceRevision: "abc"}.Bytes()
	assert.Contains(t, string(m), "Implementation-Version: 1.79\r\n")
	assert.Contains(t, string(m), "Source-Revision: abc\r\n")
}

func jarEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		_, err = io.Copy(io.Discard, rc)
		require.NoError(t, err)
		_ = rc.Close()
		names = append(names, f.Name)
	}
	return names
}
