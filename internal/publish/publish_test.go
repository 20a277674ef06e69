package publish

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/checksum"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/ledger"
	"git.home.luguber.info/inful/relpub/internal/metrics"
	"git.home.luguber.info/inful/relpub/internal/pom"
	"git.home.luguber.info/inful/relpub/internal/retry"
	"git.home.luguber.info/inful/relpub/internal/router"
	"git.home.luguber.info/inful/relpub/internal/signing"
	"git.home.luguber.info/inful/relpub/internal/transport"
)

func fileURL(dir string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}).String()
}

func localDestination(name, dir string) config.DestinationConfig {
	return config.DestinationConfig{
		Name:           name,
		ReleaseURL:     fileURL(dir),
		SnapshotURL:    fileURL(dir),
		Publish:        true,
		CredentialKind: config.CredentialNone,
	}
}

func sonatypeDestination() config.DestinationConfig {
	return config.DestinationConfig{
		Name:           "sonatype",
		ReleaseURL:     "https://oss.sonatype.org/service/local/staging/deploy/maven2/",
		SnapshotURL:    "https://oss.sonatype.org/content/repositories/snapshots/",
		Publish:        true,
		CredentialKind: config.CredentialBasic,
		CredentialKeys: config.CredentialKeys{UsernameKey: "sonatypeUser", PasswordKey: "sonatypePassword"},
	}
}

func buildSet(t *testing.T, version string) (coordinate.Coordinate, *artifacts.Set) {
	t.Helper()
	root := t.TempDir()
	classes := filepath.Join(root, "classes", "com", "beust")
	require.NoError(t, os.MkdirAll(classes, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(classes, "JCommander.class"), []byte{0xCA, 0xFE}, 0o600))

	coord, err := coordinate.New("com.beust", "jcommander", version)
	require.NoError(t, err)
	set, err := artifacts.NewBuilder(config.ProjectConfig{Name: "JCommander"}, nil).Build(context.Background(), coord,
		artifacts.Inputs{CompiledOutput: filepath.Join(root, "classes"), StagingDir: filepath.Join(root, "staging")},
		artifacts.Inclusion{IncludeSources: true})
	require.NoError(t, err)
	return coord, set
}

func planFor(t *testing.T, coord coordinate.Coordinate, set *artifacts.Set, opts PlanOptions, dests ...config.DestinationConfig) *Plan {
	t.Helper()
	routes, err := router.Route(coord, set, dests)
	require.NoError(t, err)
	plan, err := NewPlanner(opts).Plan(coord, set, routes)
	require.NoError(t, err)
	return plan
}

func testPolicy(maxRetries int) retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, maxRetries)
}

func newTestExecutor(opts Options) *Executor {
	if opts.Resolver == nil {
		opts.Resolver = credentials.NewResolver(nil, credentials.NewMapEnvSource(nil))
	}
	e := NewExecutor(opts)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func TestPlanLayout(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	dest := sonatypeDestination()
	dest.RequiresSigning = true

	plan := planFor(t, coord, set, PlanOptions{}, dest)
	require.Len(t, plan.Destinations, 1)
	dp := plan.Destinations[0]
	assert.True(t, dp.Sign)
	assert.True(t, dp.Counted)
	require.Len(t, dp.Groups, 3, "primary, sources and pom")

	primary := dp.Groups[0]
	paths := make([]string, 0, len(primary.Files))
	for _, f := range primary.Files {
		paths = append(paths, f.RemotePath)
	}
	base := "com/beust/jcommander/1.79/jcommander-1.79.jar"
	assert.Equal(t, []string{
		base, base + ".md5", base + ".sha1",
		base + ".asc", base + ".asc.md5", base + ".asc.sha1",
	}, paths)
	assert.Equal(t, "com/beust/jcommander/maven-metadata.xml", dp.Metadata[0].RemotePath)
	assert.NotEmpty(t, plan.RunID)
	assert.Equal(t, 3*6+3, plan.FileCount())
}

func TestPlanSkipSigningIsNotCounted(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	signed := sonatypeDestination()
	signed.RequiresSigning = true
	optional := localDestination("local", t.TempDir())
	optional.Optional = true

	plan := planFor(t, coord, set, PlanOptions{SkipSigning: true, Checksums: []config.ChecksumAlgorithm{config.ChecksumSHA256}},
		signed, optional, localDestination("mirror", t.TempDir()))
	require.Len(t, plan.Destinations, 3)

	assert.False(t, plan.Destinations[0].Sign)
	assert.True(t, plan.Destinations[0].SigningBypassed)
	assert.False(t, plan.Destinations[0].Counted)
	assert.False(t, plan.Destinations[1].Counted)
	assert.True(t, plan.Destinations[2].Counted)
	assert.Len(t, plan.Destinations[2].Groups[0].Files, 2, "artifact plus sha256")
}

func TestPartialFailureIsolation(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	repoDir := t.TempDir()
	plan := planFor(t, coord, set, PlanOptions{}, sonatypeDestination(), localDestination("local", repoDir))

	res := newTestExecutor(Options{Policy: testPolicy(2), Concurrency: 2}).Execute(context.Background(), plan)

	require.Len(t, res.Destinations, 2)
	sonatype, local := res.Destinations[0], res.Destinations[1]
	assert.Equal(t, StatusFailure, sonatype.Status)
	assert.Equal(t, ferrors.CategoryCredential, sonatype.Category)
	assert.Contains(t, sonatype.Message, "sonatypeUser")
	assert.Contains(t, sonatype.Hint, "SONATYPE_USER")

	assert.Equal(t, StatusSuccess, local.Status)
	assert.FileExists(t, filepath.Join(repoDir, filepath.FromSlash(coord.Path("", "jar"))))
	assert.FileExists(t, filepath.Join(repoDir, filepath.FromSlash(coord.Path("sources", "jar.sha1"))))

	assert.False(t, res.Succeeded())
	assert.True(t, ferrors.HasCategory(res.Err(), ferrors.CategoryCredential))
}

func TestOptionalFailureDoesNotFailRun(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	dest := sonatypeDestination()
	dest.Optional = true
	plan := planFor(t, coord, set, PlanOptions{}, dest, localDestination("local", t.TempDir()))

	res := newTestExecutor(Options{Policy: testPolicy(0)}).Execute(context.Background(), plan)
	assert.Equal(t, StatusFailure, res.Destinations[0].Status)
	assert.True(t, res.Succeeded())
	assert.NoError(t, res.Err())
}

// failingRepo rejects every Put with a retryable error.
type failingRepo struct {
	puts atomic.Int32
}

func (r *failingRepo) Exists(context.Context, string) (bool, error) { return false, nil }
func (r *failingRepo) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (r *failingRepo) Location(p string) string { return "mem://" + p }
func (r *failingRepo) Close() error { return nil }
func (r *failingRepo) Put(_ context.Context, _ string, body io.Reader, _ int64) error {
	_, _ = io.Copy(io.Discard, body)
	r.puts.Add(1)
	return ferrors.UploadError("503 Service Unavailable").Build()
}

func TestRetryBoundIsMaxRetriesPlusOne(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3} {
		coord, set := buildSet(t, "1.80-SNAPSHOT")
		plan := planFor(t, coord, set, PlanOptions{}, localDestination("flaky", t.TempDir()))

		repo := &failingRepo{}
		opener := transport.OpenerFunc(func(context.Context, transport.Target, credentials.Set) (transport.Repository, error) {
			return repo, nil
		})
		res := newTestExecutor(Options{Opener: opener, Policy: testPolicy(maxRetries)}).Execute(context.Background(), plan)

		d := res.Destinations[0]
		assert.Equal(t, StatusFailure, d.Status)
		assert.Equal(t, ferrors.CategoryUpload, d.Category)
		assert.Equal(t, maxRetries+1, d.Attempts)
		assert.Equal(t, int32(maxRetries+1), repo.puts.Load(), "group aborts at its first failing file")
	}
}

// flakyRepo fails the first n Puts, then delegates.
type flakyRepo struct {
	transport.Repository
	mu       sync.Mutex
	failures int
}

func (r *flakyRepo) Put(ctx context.Context, p string, body io.Reader, size int64) error {
	r.mu.Lock()
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return ferrors.UploadError("connection reset").Build()
	}
	return r.Repository.Put(ctx, p, body, size)
}

func TestTransientFailureRetriesWholeGroup(t *testing.T) {
	coord, set := buildSet(t, "1.80-SNAPSHOT")
	dir := t.TempDir()
	plan := planFor(t, coord, set, PlanOptions{}, localDestination("local", dir))

	opener := transport.OpenerFunc(func(_ context.Context, _ transport.Target, _ credentials.Set) (transport.Repository, error) {
		return &flakyRepo{Repository: transport.NewFileRepository(dir), failures: 1}, nil
	})
	res := newTestExecutor(Options{Opener: opener, Policy: testPolicy(2)}).Execute(context.Background(), plan)

	d := res.Destinations[0]
	require.Equal(t, StatusSuccess, d.Status, d.Message)
	// three artifact groups plus metadata, one of them tried twice
	assert.Equal(t, 5, d.Attempts)
}

func TestSnapshotIsIdempotent(t *testing.T) {
	coord, set := buildSet(t, "1.80-SNAPSHOT")
	dir := t.TempDir()
	plan := planFor(t, coord, set, PlanOptions{}, localDestination("local", dir))

	for run := 0; run < 2; run++ {
		res := newTestExecutor(Options{Policy: testPolicy(0)}).Execute(context.Background(), plan)
		require.True(t, res.Succeeded(), "run %d: %+v", run, res.Destinations)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(coord.MetadataPath())))
	require.NoError(t, err)
	meta, err := pom.ParseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.80-SNAPSHOT"}, meta.Versioning.Versions)
	assert.Empty(t, meta.Versioning.Release)

	sha1, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(coord.MetadataPath()+".sha1")))
	require.NoError(t, err)
	assert.Equal(t, checksum.Bytes(data, config.ChecksumSHA1)[config.ChecksumSHA1], string(sha1))
}

func TestReleaseConflictFromRepository(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	dir := t.TempDir()
	plan := planFor(t, coord, set, PlanOptions{}, localDestination("local", dir))

	first := newTestExecutor(Options{Policy: testPolicy(2)}).Execute(context.Background(), plan)
	require.True(t, first.Succeeded())

	second := newTestExecutor(Options{Policy: testPolicy(2)}).Execute(context.Background(), plan)
	d := second.Destinations[0]
	assert.Equal(t, StatusFailure, d.Status)
	assert.Equal(t, ferrors.CategoryConflict, d.Category)
	assert.Equal(t, 0, d.Attempts, "conflicts are detected before any upload")
	assert.Contains(t, d.Hint, "--allow-overwrite")
	assert.Equal(t, ferrors.ExitConflict, ferrors.ExitCodeForCategory(ferrors.GetCategory(second.Err())))

	overwrite := newTestExecutor(Options{Policy: testPolicy(2), AllowOverwrite: true}).Execute(context.Background(), plan)
	assert.True(t, overwrite.Succeeded())
}

// sourcesRejectingRepo fails every Put of the sources jar.
type sourcesRejectingRepo struct {
	transport.Repository
}

func (r *sourcesRejectingRepo) Put(ctx context.Context, p string, body io.Reader, size int64) error {
	if strings.HasSuffix(p, "-sources.jar") {
		_, _ = io.Copy(io.Discard, body)
		return ferrors.UploadError("502 Bad Gateway").Build()
	}
	return r.Repository.Put(ctx, p, body, size)
}

func TestPartialReleaseCanBeRerun(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	dir := t.TempDir()
	plan := planFor(t, coord, set, PlanOptions{}, localDestination("local", dir))

	broken := transport.OpenerFunc(func(context.Context, transport.Target, credentials.Set) (transport.Repository, error) {
		return &sourcesRejectingRepo{Repository: transport.NewFileRepository(dir)}, nil
	})
	first := newTestExecutor(Options{Opener: broken, Policy: testPolicy(1)}).Execute(context.Background(), plan)
	require.Equal(t, StatusFailure, first.Destinations[0].Status)
	assert.Equal(t, ferrors.CategoryUpload, first.Destinations[0].Category)
	require.FileExists(t, filepath.Join(dir, filepath.FromSlash(coord.Path("", "jar"))))
	assert.NoFileExists(t, filepath.Join(dir, filepath.FromSlash(coord.MetadataPath())))

	second := newTestExecutor(Options{Policy: testPolicy(1)}).Execute(context.Background(), plan)
	require.True(t, second.Succeeded(), "%+v", second.Destinations)

	third := newTestExecutor(Options{Policy: testPolicy(1)}).Execute(context.Background(), plan)
	assert.Equal(t, ferrors.CategoryConflict, third.Destinations[0].Category)
	assert.Contains(t, third.Destinations[0].Message, "already published")
}

func TestReleaseConflictFromLedger(t *testing.T) {
	store, err := ledger.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	coord, set := buildSet(t, "1.79")
	first := planFor(t, coord, set, PlanOptions{}, localDestination("local", t.TempDir()))
	res := newTestExecutor(Options{Policy: testPolicy(0), Ledger: store}).Execute(context.Background(), first)
	require.True(t, res.Succeeded())

	// A fresh repository directory: only the ledger knows about the release.
	second := planFor(t, coord, set, PlanOptions{}, localDestination("local", t.TempDir()))
	res = newTestExecutor(Options{Policy: testPolicy(0), Ledger: store}).Execute(context.Background(), second)
	assert.Equal(t, ferrors.CategoryConflict, res.Destinations[0].Category)

	history, err := store.History(context.Background(), "com.beust", "jcommander", "1.79")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.StatusSuccess, history[0].Status)
	assert.Equal(t, set.Primary().SHA256, history[0].PrimarySHA256)
	assert.Equal(t, ledger.StatusFailure, history[1].Status)
	assert.Equal(t, "conflict", history[1].Category)
}

func testSigner(t *testing.T) *signing.Signer {
	t.Helper()
	entity, err := openpgp.NewEntity("Release Bot", "test", "release@example.com", nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, "PGP PRIVATE KEY BLOCK", nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())
	signer, err := signing.NewSigner(credentials.Set{Kind: credentials.KindSigning, KeyMaterial: buf.Bytes()})
	require.NoError(t, err)
	return signer
}

func TestSignedDestinationUploadsSignatures(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	dir := t.TempDir()
	dest := localDestination("signed", dir)
	dest.RequiresSigning = true
	plan := planFor(t, coord, set, PlanOptions{}, dest)

	signer := testSigner(t)
	var loads atomic.Int32
	exec := newTestExecutor(Options{
		Policy: testPolicy(0),
		Signer: func() (*signing.Signer, error) {
			loads.Add(1)
			return signer, nil
		},
	})
	res := exec.Execute(context.Background(), plan)
	require.True(t, res.Succeeded(), "%+v", res.Destinations)
	assert.Equal(t, int32(1), loads.Load())

	jar := filepath.Join(dir, filepath.FromSlash(coord.Path("", "jar")))
	sig, err := os.ReadFile(jar + ".asc")
	require.NoError(t, err)
	content, err := os.ReadFile(jar)
	require.NoError(t, err)
	require.NoError(t, signer.Verify(bytes.NewReader(content), bytes.NewReader(sig)))
	assert.FileExists(t, jar+".asc.md5")
}

func TestSigningWithoutKeyFailsOnlySignedDestinations(t *testing.T) {
	coord, set := buildSet(t, "1.79")
	signed := localDestination("signed", t.TempDir())
	signed.RequiresSigning = true
	plan := planFor(t, coord, set, PlanOptions{}, signed, localDestination("plain", t.TempDir()))

	res := newTestExecutor(Options{Policy: testPolicy(1)}).Execute(context.Background(), plan)
	assert.Equal(t, ferrors.CategorySigning, res.Destinations[0].Category)
	assert.Equal(t, StatusSuccess, res.Destinations[1].Status)
	assert.Equal(t, ferrors.ExitSigning, ferrors.ExitCodeForCategory(ferrors.GetCategory(res.Err())))
}

// retryCounter counts retries per destination and step.
type retryCounter struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	retries map[string]int
}

func (c *retryCounter) IncRetry(destination, step string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retries == nil {
		c.retries = make(map[string]int)
	}
	c.retries[destination+"/"+step]++
}

func (c *retryCounter) count(destination, step string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries[destination+"/"+step]
}

func TestSigningTimeoutIsRetriedThenFailsOnlySignedDestination(t *testing.T) {
	const maxRetries = 2
	coord, set := buildSet(t, "1.79")
	signedDir := t.TempDir()
	signed := localDestination("signed", signedDir)
	signed.RequiresSigning = true
	plan := planFor(t, coord, set, PlanOptions{}, signed, localDestination("plain", t.TempDir()))

	signer := testSigner(t)
	recorder := &retryCounter{}
	res := newTestExecutor(Options{
		Policy:         testPolicy(maxRetries),
		Recorder:       recorder,
		SigningTimeout: time.Nanosecond,
		Signer:         func() (*signing.Signer, error) { return signer, nil },
	}).Execute(context.Background(), plan)

	require.Len(t, res.Destinations, 2)
	assert.Equal(t, StatusFailure, res.Destinations[0].Status)
	assert.Equal(t, ferrors.CategorySigning, res.Destinations[0].Category)
	assert.Equal(t, maxRetries, recorder.count("signed", "sign"), "max_retries+1 attempts means max_retries retries")
	assert.NoFileExists(t, filepath.Join(signedDir, filepath.FromSlash(coord.Path("", "jar"))))

	assert.Equal(t, StatusSuccess, res.Destinations[1].Status)
	assert.Zero(t, recorder.count("plain", "sign"))
	assert.Equal(t, ferrors.ExitSigning, ferrors.ExitCodeForCategory(ferrors.GetCategory(res.Err())))
}

func TestCanceledRunSkipsUnstartedDestinations(t *testing.T) {
	coord, set := buildSet(t, "1.80-SNAPSHOT")
	plan := planFor(t, coord, set, PlanOptions{},
		localDestination("a", t.TempDir()), localDestination("b", t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestExecutor(Options{Policy: testPolicy(0)}).Execute(ctx, plan)

	for _, d := range res.Destinations {
		assert.Equal(t, StatusSkipped, d.Status)
	}
	assert.True(t, res.Canceled)
	assert.True(t, res.Succeeded(), "skipped destinations are not failures")
	assert.True(t, ferrors.HasCategory(res.Err(), ferrors.CategoryCanceled))
}

// blockingRepo cancels the run on its first Put and records whether the
// upload context survived the cancellation.
type blockingRepo struct {
	transport.Repository
	cancel   context.CancelFunc
	once     sync.Once
	ctxAlive atomic.Bool
}

func (r *blockingRepo) Put(ctx context.Context, p string, body io.Reader, size int64) error {
	r.once.Do(func() {
		r.cancel()
		r.ctxAlive.Store(ctx.Err() == nil)
	})
	return r.Repository.Put(ctx, p, body, size)
}

func TestInFlightDestinationSurvivesCancellation(t *testing.T) {
	coord, set := buildSet(t, "1.80-SNAPSHOT")
	dir := t.TempDir()
	plan := planFor(t, coord, set, PlanOptions{}, localDestination("first", dir), localDestination("second", t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &blockingRepo{Repository: transport.NewFileRepository(dir), cancel: cancel}
	calls := atomic.Int32{}
	opener := transport.OpenerFunc(func(_ context.Context, target transport.Target, _ credentials.Set) (transport.Repository, error) {
		calls.Add(1)
		return repo, nil
	})
	res := newTestExecutor(Options{Opener: opener, Policy: testPolicy(0), Concurrency: 1}).Execute(ctx, plan)

	assert.Equal(t, StatusSuccess, res.Destinations[0].Status)
	assert.True(t, repo.ctxAlive.Load())
	assert.Equal(t, StatusSkipped, res.Destinations[1].Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, strings.HasPrefix(res.Destinations[1].Message, "run canceled"))
}
