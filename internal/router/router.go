// Package router decides which destinations receive a release and at which
// repository URL, based on the coordinate's classification.
package router

import (
	"fmt"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// Destination is one target repository resolved for a classification.
type Destination struct {
	Name            string                `json:"name"`
	URL             string                `json:"url"` // selected from ReleaseURL or SnapshotURL
	ReleaseURL      string                `json:"release_url,omitempty"`
	SnapshotURL     string                `json:"snapshot_url,omitempty"`
	RequiresSigning bool                  `json:"requires_signing"`
	Optional        bool                  `json:"optional"`
	CredentialKind  config.CredentialKind `json:"credential_kind"`
	CredentialKeys  config.CredentialKeys `json:"-"`
	Region          string                `json:"region,omitempty"`
	Endpoint        string                `json:"endpoint,omitempty"`
}

// CredentialRequest describes the secrets this destination needs.
func (d Destination) CredentialRequest() credentials.Request {
	return credentials.Request{
		Destination: d.Name,
		Kind:        credentials.KindFromConfig(d.CredentialKind),
		UsernameKey: d.CredentialKeys.UsernameKey,
		PasswordKey: d.CredentialKeys.PasswordKey,
	}
}

// Entry pairs one active destination with the shared artifact set.
type Entry struct {
	Destination Destination
	Artifacts   *artifacts.Set
}

// Routes preserves descriptor order.
type Routes []Entry

// Names lists routed destination names in order.
func (r Routes) Names() []string {
	names := make([]string, len(r))
	for i, e := range r {
		names[i] = e.Destination.Name
	}
	return names
}

// Route selects destinations with publish enabled and picks the URL matching
// the coordinate's classification. An active destination without the needed
// URL is a configuration error; nothing is routed in that case.
func Route(coord coordinate.Coordinate, set *artifacts.Set, dests []config.DestinationConfig) (Routes, error) {
	routes := make(Routes, 0, len(dests))
	for _, dc := range dests {
		if !dc.Publish {
			continue
		}
		url, field := dc.ReleaseURL, "release_url"
		if coord.Classification == coordinate.Snapshot {
			url, field = dc.SnapshotURL, "snapshot_url"
		}
		if url == "" {
			return nil, ferrors.ConfigError(fmt.Sprintf("destination %s has no %s for %s version %s",
				dc.Name, field, coord.Classification, coord.Version)).
				WithContext("destination", dc.Name).
				WithHint(fmt.Sprintf("set destinations[%s].%s or disable publish for it", dc.Name, field)).
				Build()
		}
		routes = append(routes, Entry{
			Destination: Destination{
				Name:            dc.Name,
				URL:             url,
				ReleaseURL:      dc.ReleaseURL,
				SnapshotURL:     dc.SnapshotURL,
				RequiresSigning: dc.RequiresSigning,
				Optional:        dc.Optional,
				CredentialKind:  dc.CredentialKind,
				CredentialKeys:  dc.CredentialKeys,
				Region:          dc.Region,
				Endpoint:        dc.Endpoint,
			},
			Artifacts: set,
		})
	}
	return routes, nil
}
