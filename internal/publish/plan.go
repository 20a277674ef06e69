// Package publish turns routed destinations into an ordered publication plan
// and executes it with bounded concurrency and retries.
package publish

import (
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/checksum"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/router"
	"git.home.luguber.info/inful/relpub/internal/signing"
)

// FileRole says what a planned remote file holds.
type FileRole string

const (
	RoleArtifact          FileRole = "artifact"
	RoleChecksum          FileRole = "checksum"
	RoleSignature         FileRole = "signature"
	RoleSignatureChecksum FileRole = "signature-checksum"
	RoleMetadata          FileRole = "metadata"
)

// PlannedFile is one remote file of an upload group.
type PlannedFile struct {
	RemotePath string                   `json:"remote_path"`
	Role       FileRole                 `json:"role"`
	Algorithm  config.ChecksumAlgorithm `json:"algorithm,omitempty"`
}

// UploadGroup is one artifact plus its checksum and signature files. A group
// is retried as a whole.
type UploadGroup struct {
	Artifact artifacts.Artifact `json:"artifact"`
	Files    []PlannedFile      `json:"files"`
}

// DestinationPlan is the ordered work for one destination.
type DestinationPlan struct {
	Destination        router.Destination         `json:"destination"`
	Sign               bool                       `json:"sign"`
	SigningBypassed    bool                       `json:"signing_bypassed,omitempty"`
	Counted            bool                       `json:"counted"`
	ChecksumAlgorithms []config.ChecksumAlgorithm `json:"checksum_algorithms"`
	Groups             []UploadGroup              `json:"groups"`
	Metadata           []PlannedFile              `json:"metadata"`
}

// Plan is the full publication plan of one invocation. It is not persisted.
type Plan struct {
	RunID        string                `json:"run_id"`
	Coordinate   coordinate.Coordinate `json:"coordinate"`
	Artifacts    *artifacts.Set        `json:"artifacts"`
	Destinations []DestinationPlan     `json:"destinations"`
	CreatedAt    time.Time             `json:"created_at"`
}

// FileCount is the number of remote files the plan writes.
func (p *Plan) FileCount() int {
	n := 0
	for _, d := range p.Destinations {
		n += len(d.Metadata)
		for _, g := range d.Groups {
			n += len(g.Files)
		}
	}
	return n
}

// PlanOptions adjusts planning.
type PlanOptions struct {
	Checksums   []config.ChecksumAlgorithm
	SkipSigning bool
}

// Planner builds plans.
type Planner struct {
	opts PlanOptions
	now  func() time.Time
}

// NewPlanner returns a planner. Without explicit checksum algorithms the
// descriptor defaults apply.
func NewPlanner(opts PlanOptions) *Planner {
	if len(opts.Checksums) == 0 {
		opts.Checksums = config.DefaultChecksums
	}
	return &Planner{opts: opts, now: time.Now}
}

// Plan lays out, per routed destination, one upload group per artifact and a
// final metadata group. Destinations keep descriptor order.
func (p *Planner) Plan(coord coordinate.Coordinate, set *artifacts.Set, routes router.Routes) (*Plan, error) {
	if set == nil || len(set.Artifacts) == 0 {
		return nil, ferrors.InternalError("cannot plan an empty artifact set").Build()
	}
	plan := &Plan{
		RunID:        uuid.NewString(),
		Coordinate:   coord,
		Artifacts:    set,
		Destinations: make([]DestinationPlan, 0, len(routes)),
		CreatedAt:    p.now(),
	}
	for _, r := range routes {
		dest := r.Destination
		sign := dest.RequiresSigning && !p.opts.SkipSigning
		bypassed := dest.RequiresSigning && p.opts.SkipSigning
		dp := DestinationPlan{
			Destination:        dest,
			Sign:               sign,
			SigningBypassed:    bypassed,
			Counted:            !dest.Optional && !bypassed,
			ChecksumAlgorithms: p.opts.Checksums,
			Groups:             make([]UploadGroup, 0, len(set.Artifacts)),
		}
		for _, a := range set.Artifacts {
			dp.Groups = append(dp.Groups, p.group(coord, a, sign))
		}
		dp.Metadata = p.metadataFiles(coord)
		plan.Destinations = append(plan.Destinations, dp)
	}
	return plan, nil
}

func (p *Planner) group(coord coordinate.Coordinate, a artifacts.Artifact, sign bool) UploadGroup {
	remote := a.RemotePath(coord)
	files := []PlannedFile{{RemotePath: remote, Role: RoleArtifact}}
	for _, algo := range p.opts.Checksums {
		files = append(files, PlannedFile{RemotePath: remote + "." + checksum.Extension(algo), Role: RoleChecksum, Algorithm: algo})
	}
	if sign {
		sig := remote + "." + signing.SignatureExtension
		files = append(files, PlannedFile{RemotePath: sig, Role: RoleSignature})
		for _, algo := range p.opts.Checksums {
			files = append(files, PlannedFile{RemotePath: sig + "." + checksum.Extension(algo), Role: RoleSignatureChecksum, Algorithm: algo})
		}
	}
	return UploadGroup{Artifact: a, Files: files}
}

func (p *Planner) metadataFiles(coord coordinate.Coordinate) []PlannedFile {
	path := coord.MetadataPath()
	files := []PlannedFile{{RemotePath: path, Role: RoleMetadata}}
	for _, algo := range p.opts.Checksums {
		files = append(files, PlannedFile{RemotePath: path + "." + checksum.Extension(algo), Role: RoleChecksum, Algorithm: algo})
	}
	return files
}
