package pom

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"

	"git.home.luguber.info/inful/relpub/internal/coordinate"
)

// MetadataFile is the artifact-level index file name.
const MetadataFile = "maven-metadata.xml"

const lastUpdatedLayout = "20060102150405"

// Metadata is the artifact-level maven-metadata.xml document.
type Metadata struct {
	XMLName    xml.Name   `xml:"metadata"`
	GroupID    string     `xml:"groupId"`
	ArtifactID string     `xml:"artifactId"`
	Versioning Versioning `xml:"versioning"`
}

type Versioning struct {
	Latest      string   `xml:"latest,omitempty"`
	Release     string   `xml:"release,omitempty"`
	Versions    []string `xml:"versions>version"`
	LastUpdated string   `xml:"lastUpdated,omitempty"`
}

// ParseMetadata decodes an existing index.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	return &m, nil
}

// MergeMetadata adds coord's version to existing (nil or empty for a first
// publication) and returns the rendered document. Merging the same version
// twice yields the same version list.
func MergeMetadata(existing []byte, coord coordinate.Coordinate, now time.Time) ([]byte, error) {
	m := &Metadata{GroupID: coord.GroupID, ArtifactID: coord.ArtifactID}
	if len(bytes.TrimSpace(existing)) > 0 {
		parsed, err := ParseMetadata(existing)
		if err != nil {
			return nil, err
		}
		if parsed.GroupID != coord.GroupID || parsed.ArtifactID != coord.ArtifactID {
			return nil, fmt.Errorf("%s belongs to %s:%s, not %s:%s", MetadataFile,
				parsed.GroupID, parsed.ArtifactID, coord.GroupID, coord.ArtifactID)
		}
		m = parsed
	}

	if !slices.Contains(m.Versioning.Versions, coord.Version) {
		m.Versioning.Versions = append(m.Versioning.Versions, coord.Version)
	}
	sortVersions(m.Versioning.Versions)
	m.Versioning.Latest = m.Versioning.Versions[len(m.Versioning.Versions)-1]
	if !coord.IsSnapshot() {
		m.Versioning.Release = latestRelease(m.Versioning.Versions)
	}
	m.Versioning.LastUpdated = now.UTC().Format(lastUpdatedLayout)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("render %s: %w", MetadataFile, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// sortVersions orders semver-parseable versions ascending and keeps the rest
// in insertion order after them.
func sortVersions(versions []string) {
	slices.SortStableFunc(versions, func(a, b string) int {
		va, errA := semver.NewVersion(a)
		vb, errB := semver.NewVersion(b)
		switch {
		case errA == nil && errB == nil:
			return va.Compare(vb)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			return 0
		}
	})
}

func latestRelease(versions []string) string {
	for i := len(versions) - 1; i >= 0; i-- {
		if class, err := coordinate.Classify(versions[i]); err == nil && class == coordinate.Release {
			return versions[i]
		}
	}
	return ""
}
