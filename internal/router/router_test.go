package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

func destinations() []config.DestinationConfig {
	return []config.DestinationConfig{
		{Name: "sonatype", ReleaseURL: "https://rel.example/", SnapshotURL: "https://snap.example/", Publish: true,
			CredentialKind: config.CredentialBasic, CredentialKeys: config.CredentialKeys{UsernameKey: "sonatypeUser", PasswordKey: "sonatypePassword"}},
		{Name: "bintray", ReleaseURL: "https://bintray.example/", Publish: false},
		{Name: "local", ReleaseURL: "file:///tmp/repo", SnapshotURL: "file:///tmp/snap", Publish: true, Optional: true},
	}
}

func coord(t *testing.T, v string) coordinate.Coordinate {
	t.Helper()
	c, err := coordinate.New("com.beust", "jcommander", v)
	require.NoError(t, err)
	return c
}

func TestRouteSelectsURLByClassification(t *testing.T) {
	set := &artifacts.Set{}

	rel, err := Route(coord(t, "1.79"), set, destinations())
	require.NoError(t, err)
	assert.Equal(t, []string{"sonatype", "local"}, rel.Names())
	assert.Equal(t, "https://rel.example/", rel[0].Destination.URL)
	assert.Equal(t, "file:///tmp/repo", rel[1].Destination.URL)
	assert.IsType(t, Entry{}, rel[0])

	snap, err := Route(coord(t, "1.80-SNAPSHOT"), set, destinations())
	require.NoError(t, err)
	assert.Equal(t, "https://snap.example/", snap[0].Destination.URL)
	assert.Equal(t, "file:///tmp/snap", snap[1].Destination.URL)

	for _, r := range snap {
		assert.Same(t, set, r.Artifacts)
	}
}

func TestPublishFalseNeverRouted(t *testing.T) {
	for _, v := range []string{"1.0", "1.0-SNAPSHOT"} {
		routes, err := Route(coord(t, v), &artifacts.Set{}, destinations())
		require.NoError(t, err)
		assert.NotContains(t, routes.Names(), "bintray")
	}
}

func TestMissingURLVariantIsConfigError(t *testing.T) {
	dests := []config.DestinationConfig{{Name: "releases-only", ReleaseURL: "https://rel.example/", Publish: true}}
	_, err := Route(coord(t, "2.0-SNAPSHOT"), &artifacts.Set{}, dests)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	assert.Contains(t, ferrors.GetHint(err), "snapshot_url")

	// The same destination disabled is simply skipped.
	dests[0].Publish = false
	routes, err := Route(coord(t, "2.0-SNAPSHOT"), &artifacts.Set{}, dests)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestCredentialRequest(t *testing.T) {
	routes, err := Route(coord(t, "1.0"), &artifacts.Set{}, destinations())
	require.NoError(t, err)
	req := routes[0].Destination.CredentialRequest()
	assert.Equal(t, credentials.KindBasic, req.Kind)
	assert.Equal(t, "sonatypeUser", req.UsernameKey)
	assert.Equal(t, credentials.KindNone, routes[1].Destination.CredentialRequest().Kind)
}
