// Package coordinate models the group/artifact/version identity of a release
// and its snapshot-versus-release classification.
package coordinate

import (
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"

	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// SnapshotMarker is the version fragment that marks a mutable, re-publishable version.
const SnapshotMarker = "SNAPSHOT"

// Classification is the mutability class of a version.
type Classification int

const (
	Release Classification = iota
	Snapshot
)

func (c Classification) String() string {
	if c == Snapshot {
		return "snapshot"
	}
	return "release"
}

// MarshalText renders the classification for JSON reports.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify returns Snapshot for versions containing SnapshotMarker and Release otherwise.
// It fails only on empty or malformed versions.
func Classify(version string) (Classification, error) {
	if err := validateSegment("version", version); err != nil {
		return Release, err
	}
	if strings.Contains(version, SnapshotMarker) {
		return Snapshot, nil
	}
	return Release, nil
}

// Coordinate is an immutable (group, artifact, version) triple. The classification
// is computed once by New and threaded everywhere else as a value.
type Coordinate struct {
	GroupID        string         `json:"group_id"`
	ArtifactID     string         `json:"artifact_id"`
	Version        string         `json:"version"`
	Classification Classification `json:"classification"`
}

// New validates the three fields and classifies the version.
func New(groupID, artifactID, version string) (Coordinate, error) {
	if err := validateSegment("group_id", groupID); err != nil {
		return Coordinate{}, err
	}
	if err := validateSegment("artifact_id", artifactID); err != nil {
		return Coordinate{}, err
	}
	class, err := Classify(version)
	if err != nil {
		return Coordinate{}, err
	}
	return Coordinate{GroupID: groupID, ArtifactID: artifactID, Version: version, Classification: class}, nil
}

// IsSnapshot reports whether the coordinate may be re-published.
func (c Coordinate) IsSnapshot() bool { return c.Classification == Snapshot }

// String renders the coordinate as group:artifact:version.
func (c Coordinate) String() string {
	return c.GroupID + ":" + c.ArtifactID + ":" + c.Version
}

// ArtifactDir is the repository directory holding every version of the artifact.
func (c Coordinate) ArtifactDir() string {
	return path.Join(strings.ReplaceAll(c.GroupID, ".", "/"), c.ArtifactID)
}

// Dir is the repository directory for this version.
func (c Coordinate) Dir() string {
	return path.Join(c.ArtifactDir(), c.Version)
}

// FileName returns the file name for a classifier ("" for the main artifact) and extension.
func (c Coordinate) FileName(classifier, ext string) string {
	name := c.ArtifactID + "-" + c.Version
	if classifier != "" {
		name += "-" + classifier
	}
	return name + "." + ext
}

// Path returns the repository-relative path of a file belonging to this coordinate.
func (c Coordinate) Path(classifier, ext string) string {
	return path.Join(c.Dir(), c.FileName(classifier, ext))
}

// MetadataPath is the artifact-level maven-metadata.xml path.
func (c Coordinate) MetadataPath() string {
	return path.Join(c.ArtifactDir(), "maven-metadata.xml")
}

// SemVer parses the version leniently. Versions such as "1.79" are coerced;
// non-numeric versions return an error.
func (c Coordinate) SemVer() (*semver.Version, error) {
	return semver.NewVersion(c.Version)
}

func validateSegment(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ferrors.ConfigError(fmt.Sprintf("coordinate %s is empty", field)).
			WithContext("field", field).
			WithHint(fmt.Sprintf("set coordinate.%s in the descriptor", field)).
			Build()
	}
	if strings.ContainsAny(value, " \t\r\n/\\:") {
		return ferrors.ConfigError(fmt.Sprintf("coordinate %s %q contains illegal characters", field, value)).
			WithContext("field", field).
			WithHint("coordinates may not contain whitespace, slashes or colons").
			Build()
	}
	return nil
}
