// Package artifacts assembles the set of files published for one coordinate:
// the primary jar, optional sources and javadoc jars, and the POM.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/relpub/internal/checksum"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/git"
	"git.home.luguber.info/inful/relpub/internal/logfields"
	"git.home.luguber.info/inful/relpub/internal/pom"
)

// Kind identifies an artifact within a release.
type Kind string

const (
	KindPrimary Kind = "primary"
	KindSources Kind = "sources"
	KindJavadoc Kind = "javadoc"
	KindPOM     Kind = "pom"
)

// Classifier is the repository classifier; empty for the primary jar and the POM.
func (k Kind) Classifier() string {
	switch k {
	case KindSources, KindJavadoc:
		return string(k)
	default:
		return ""
	}
}

// Artifact is one file of a release. One per kind per release.
type Artifact struct {
	Kind      Kind   `json:"kind"`
	Extension string `json:"extension"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
}

// RemotePath is the repository-relative path of the artifact.
func (a Artifact) RemotePath(c coordinate.Coordinate) string {
	return c.Path(a.Kind.Classifier(), a.Extension)
}

// Set is the read-only artifact set shared by every destination.
type Set struct {
	Coordinate coordinate.Coordinate `json:"coordinate"`
	Artifacts  []Artifact            `json:"artifacts"`
	Revision   git.Revision          `json:"-"`
}

// Primary returns the compiled output artifact.
func (s *Set) Primary() Artifact {
	a, _ := s.Get(KindPrimary)
	return a
}

// Get returns the artifact of the given kind.
func (s *Set) Get(kind Kind) (Artifact, bool) {
	for _, a := range s.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// Inputs are the outputs of the external build. Each is a jar file or a directory.
type Inputs struct {
	CompiledOutput string
	SourceTree     string
	DocOutput      string
	StagingDir     string
}

// InputsFromConfig maps the descriptor's artifacts block.
func InputsFromConfig(a config.ArtifactsConfig) Inputs {
	return Inputs{
		CompiledOutput: a.CompiledOutput,
		SourceTree:     a.SourceTree,
		DocOutput:      a.DocOutput,
		StagingDir:     a.StagingDir,
	}
}

// Inclusion selects optional classifiers.
type Inclusion struct {
	IncludeSources bool
	IncludeJavadoc bool
}

// InclusionFromConfig maps the descriptor's inclusion block.
func InclusionFromConfig(i config.InclusionConfig) Inclusion {
	return Inclusion{IncludeSources: i.IncludeSources, IncludeJavadoc: i.IncludeJavadoc}
}

// Builder produces artifact sets.
type Builder struct {
	project config.ProjectConfig
	logger  *slog.Logger
}

// NewBuilder returns a builder that writes POMs from project metadata.
func NewBuilder(project config.ProjectConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{project: project, logger: logger}
}

// Build assembles the artifact set. A missing primary output is an
// ArtifactMissing error regardless of the inclusion policy. Optional
// classifiers that are included but have no input produce a manifest-only jar.
func (b *Builder) Build(ctx context.Context, coord coordinate.Coordinate, in Inputs, inc Inclusion) (*Set, error) {
	if in.StagingDir == "" {
		in.StagingDir = config.DefaultStagingDir
	}
	staging := filepath.Join(in.StagingDir, coord.ArtifactID, coord.Version)

	info, err := os.Stat(in.CompiledOutput)
	if err != nil || in.CompiledOutput == "" {
		return nil, ferrors.ArtifactError(fmt.Sprintf("primary artifact missing: %s", in.CompiledOutput)).
			WithCause(err).
			WithContext("path", in.CompiledOutput).
			WithHint("run the build before publishing or fix artifacts.compiled_output").
			Build()
	}

	rev := b.describe(in, coord)
	manifest := Manifest{Title: coord.ArtifactID, Version: coord.Version, SourceRevision: rev.String()}

	set := &Set{Coordinate: coord, Revision: rev}

	primary, err := b.materialize(KindPrimary, in.CompiledOutput, info, staging, coord, manifest)
	if err != nil {
		return nil, err
	}
	set.Artifacts = append(set.Artifacts, primary)

	optional := []struct {
		kind     Kind
		included bool
		input    string
	}{
		{KindSources, inc.IncludeSources, in.SourceTree},
		{KindJavadoc, inc.IncludeJavadoc, in.DocOutput},
	}
	for _, o := range optional {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !o.included {
			continue
		}
		a, err := b.optional(o.kind, o.input, staging, coord, manifest)
		if err != nil {
			return nil, err
		}
		set.Artifacts = append(set.Artifacts, a)
	}

	pomArtifact, err := b.writePOM(staging, coord, rev)
	if err != nil {
		return nil, err
	}
	set.Artifacts = append(set.Artifacts, pomArtifact)

	b.logger.Info("Artifact set assembled",
		logfields.Coordinate(coord.String()),
		slog.Int("artifacts", len(set.Artifacts)),
		slog.String("revision", rev.Short()))
	return set, nil
}

func (b *Builder) describe(in Inputs, coord coordinate.Coordinate) git.Revision {
	revDir := in.SourceTree
	if revDir == "" {
		revDir = filepath.Dir(in.CompiledOutput)
	}
	if _, err := os.Stat(revDir); err != nil {
		revDir = "."
	}
	rev, err := git.Describe(revDir)
	if err != nil {
		if !errors.Is(err, git.ErrNotRepository) {
			b.logger.Warn("Unable to read source revision", logfields.Path(revDir), logfields.Error(err))
		}
		return git.Revision{}
	}
	if rev.Dirty && !coord.IsSnapshot() {
		b.logger.Warn("Releasing from a working tree with uncommitted changes",
			logfields.Coordinate(coord.String()), slog.String("revision", rev.Commit))
	}
	return rev
}

func (b *Builder) optional(kind Kind, input, staging string, coord coordinate.Coordinate, m Manifest) (Artifact, error) {
	if input != "" {
		if info, err := os.Stat(input); err == nil {
			return b.materialize(kind, input, info, staging, coord, m)
		}
	}
	b.logger.Warn("Optional input missing, publishing empty jar",
		logfields.Classifier(string(kind)), logfields.Path(input))
	dest := filepath.Join(staging, coord.FileName(kind.Classifier(), "jar"))
	if err := writeJar(dest, "", m); err != nil {
		return Artifact{}, stagingError(kind, dest, err)
	}
	return describeFile(kind, "jar", dest)
}

func (b *Builder) materialize(kind Kind, input string, info os.FileInfo, staging string, coord coordinate.Coordinate, m Manifest) (Artifact, error) {
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(input), ".jar") {
			return Artifact{}, ferrors.ArtifactError(fmt.Sprintf("%s input %s is neither a directory nor a jar", kind, input)).
				WithContext("path", input).
				Build()
		}
		return describeFile(kind, "jar", input)
	}
	dest := filepath.Join(staging, coord.FileName(kind.Classifier(), "jar"))
	if err := writeJar(dest, input, m); err != nil {
		return Artifact{}, stagingError(kind, dest, err)
	}
	b.logger.Debug("Packaged directory", logfields.Classifier(string(kind)), logfields.Path(dest))
	return describeFile(kind, "jar", dest)
}

func (b *Builder) writePOM(staging string, coord coordinate.Coordinate, rev git.Revision) (Artifact, error) {
	data, err := pom.Generate(coord, b.project, rev.String())
	if err != nil {
		return Artifact{}, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render POM").Build()
	}
	dest := filepath.Join(staging, coord.FileName("", "pom"))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Artifact{}, stagingError(KindPOM, dest, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil { //nolint:gosec // public release metadata
		return Artifact{}, stagingError(KindPOM, dest, err)
	}
	return describeFile(KindPOM, "pom", dest)
}

func describeFile(kind Kind, ext, path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, stagingError(kind, path, err)
	}
	sum, err := checksum.SHA256File(path)
	if err != nil {
		return Artifact{}, stagingError(kind, path, err)
	}
	return Artifact{Kind: kind, Extension: ext, Path: path, Size: info.Size(), SHA256: sum}, nil
}

func stagingError(kind Kind, path string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryArtifact, fmt.Sprintf("failed to stage %s artifact", kind)).
		Fatal().
		WithContext("path", path).
		Build()
}
