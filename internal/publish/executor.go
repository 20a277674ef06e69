package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/checksum"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/ledger"
	"git.home.luguber.info/inful/relpub/internal/logfields"
	"git.home.luguber.info/inful/relpub/internal/metrics"
	"git.home.luguber.info/inful/relpub/internal/pom"
	"git.home.luguber.info/inful/relpub/internal/retry"
	"git.home.luguber.info/inful/relpub/internal/signing"
	"git.home.luguber.info/inful/relpub/internal/transport"
)

// CredentialResolver resolves one destination's credentials.
type CredentialResolver interface {
	Resolve(req credentials.Request) (credentials.Set, error)
}

// Ledger is the publication record consulted before releases and written
// after every run.
type Ledger interface {
	IsPublished(ctx context.Context, coord coordinate.Coordinate, destination string) (bool, error)
	Record(ctx context.Context, e ledger.Entry) error
}

// SignerFunc loads the signing key. It is called at most once per executor.
type SignerFunc func() (*signing.Signer, error)

// Options configures an Executor.
type Options struct {
	Resolver       CredentialResolver
	Opener         transport.Opener
	Signer         SignerFunc
	Ledger         Ledger // optional
	Recorder       metrics.Recorder
	Logger         *slog.Logger
	Policy         retry.Policy
	Concurrency    int
	UploadTimeout  time.Duration
	SigningTimeout time.Duration
	AllowOverwrite bool
}

// Executor runs plans.
type Executor struct {
	opts   Options
	signer func() (*signing.Signer, error)
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewExecutor fills unset options with defaults.
func NewExecutor(opts Options) *Executor {
	if opts.Opener == nil {
		opts.Opener = transport.DefaultOpener{}
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}
	if opts.SigningTimeout <= 0 {
		opts.SigningTimeout = 30 * time.Second
	}
	e := &Executor{opts: opts, now: time.Now}
	if opts.Signer != nil {
		e.signer = sync.OnceValues(opts.Signer)
	} else {
		e.signer = func() (*signing.Signer, error) {
			return nil, ferrors.SigningError("signing is required but no signing key is configured").
				UserAction().
				WithHint("set signing.key_file or the signingKey property, or pass --skip-signing").
				Build()
		}
	}
	return e
}

// Execute runs every destination of the plan. Destinations run concurrently up
// to the configured bound. Once ctx is canceled no further destination starts;
// the ones already running finish on a context detached from ctx.
func (e *Executor) Execute(ctx context.Context, plan *Plan) *Result {
	start := e.now()
	res := &Result{
		RunID:        plan.RunID,
		Coordinate:   plan.Coordinate,
		StartedAt:    start,
		Destinations: make([]DestinationResult, len(plan.Destinations)),
	}
	log := e.opts.Logger.With(logfields.RunID(plan.RunID), logfields.Coordinate(plan.Coordinate.String()))
	log.Info("Publication started",
		logfields.Classification(plan.Coordinate.Classification.String()),
		slog.Int("destinations", len(plan.Destinations)),
		slog.Int("concurrency", e.opts.Concurrency))
	e.opts.Recorder.SetConcurrency(e.opts.Concurrency)

	detached := context.WithoutCancel(ctx)
	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup
	for i, dp := range plan.Destinations {
		acquired := false
		select {
		case sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			if acquired {
				<-sem
			}
			res.Canceled = true
			res.Destinations[i] = e.skipped(dp, "run canceled before the destination started")
			continue
		}
		wg.Add(1)
		go func(i int, dp DestinationPlan) {
			defer wg.Done()
			defer func() { <-sem }()
			res.Destinations[i] = e.runDestination(detached, plan, dp)
		}(i, dp)
	}
	wg.Wait()

	res.Duration = e.now().Sub(start)
	e.opts.Recorder.ObserveRunDuration(res.Duration)
	e.record(detached, plan, res)

	log.Info("Publication finished",
		slog.Int("succeeded", res.Count(StatusSuccess)),
		slog.Int("failed", res.Count(StatusFailure)),
		slog.Int("skipped", res.Count(StatusSkipped)),
		slog.Bool("ok", res.Succeeded()),
		logfields.Duration(res.Duration))
	return res
}

func (e *Executor) skipped(dp DestinationPlan, reason string) DestinationResult {
	e.opts.Recorder.IncDestinationResult(dp.Destination.Name, metrics.ResultSkipped, "")
	return DestinationResult{
		Destination: dp.Destination.Name,
		URL:         dp.Destination.URL,
		Status:      StatusSkipped,
		Counted:     dp.Counted,
		Message:     reason,
	}
}

func (e *Executor) runDestination(ctx context.Context, plan *Plan, dp DestinationPlan) DestinationResult {
	start := e.now()
	run := &destinationRun{
		exec: e,
		plan: plan,
		dp:   dp,
		log: e.opts.Logger.With(
			logfields.RunID(plan.RunID),
			logfields.Destination(dp.Destination.Name),
			logfields.URL(dp.Destination.URL)),
		res: DestinationResult{
			Destination: dp.Destination.Name,
			URL:         dp.Destination.URL,
			Counted:     dp.Counted,
		},
	}
	if dp.SigningBypassed {
		run.log.Warn("Signing bypassed; destination does not count toward the run result")
	}

	err := run.execute(ctx)
	res := run.res
	res.Duration = e.now().Sub(start)
	e.opts.Recorder.ObserveDestinationDuration(dp.Destination.Name, res.Duration)

	if err != nil {
		res.Status = StatusFailure
		res.Category = ferrors.GetCategory(err)
		res.Message = err.Error()
		res.Hint = ferrors.GetHint(err)
		res.err = err
		e.opts.Recorder.IncDestinationResult(dp.Destination.Name, metrics.ResultFailure, string(res.Category))
		level := slog.LevelError
		if !dp.Counted {
			level = slog.LevelWarn
		}
		run.log.Log(ctx, level, "Destination failed",
			logfields.Category(string(res.Category)),
			logfields.Error(err),
			logfields.Attempt(res.Attempts),
			logfields.Duration(res.Duration))
		return res
	}
	res.Status = StatusSuccess
	e.opts.Recorder.IncDestinationResult(dp.Destination.Name, metrics.ResultSuccess, "")
	run.log.Info("Destination published",
		slog.Int("files", len(res.Uploaded)),
		logfields.Attempt(res.Attempts),
		logfields.Duration(res.Duration))
	return res
}

// record writes every outcome to the ledger in descriptor order. Ledger
// failures are logged and do not change the result.
func (e *Executor) record(ctx context.Context, plan *Plan, res *Result) {
	if e.opts.Ledger == nil {
		return
	}
	primary := ""
	if plan.Artifacts != nil {
		primary = plan.Artifacts.Primary().SHA256
	}
	for _, d := range res.Destinations {
		entry := ledger.Entry{
			RunID:          plan.RunID,
			GroupID:        plan.Coordinate.GroupID,
			ArtifactID:     plan.Coordinate.ArtifactID,
			Version:        plan.Coordinate.Version,
			Classification: plan.Coordinate.Classification.String(),
			Destination:    d.Destination,
			Location:       d.URL,
			Status:         string(d.Status),
			Category:       string(d.Category),
			Message:        d.Message,
			PrimarySHA256:  primary,
			Attempts:       d.Attempts,
			DurationMS:     d.Duration.Milliseconds(),
		}
		if err := e.opts.Ledger.Record(ctx, entry); err != nil {
			e.opts.Logger.Warn("Failed to record publication outcome",
				logfields.Destination(d.Destination), logfields.Error(err))
		}
	}
}

// destinationRun carries the state of one destination's pipeline.
type destinationRun struct {
	exec *Executor
	plan *Plan
	dp   DestinationPlan
	log  *slog.Logger
	res  DestinationResult
}

// payload is one remote file: either a local file re-opened per attempt or
// in-memory content.
type payload struct {
	remote string
	path   string
	data   []byte
}

func (r *destinationRun) execute(ctx context.Context) error {
	dest := r.dp.Destination
	coord := r.plan.Coordinate

	creds, err := r.exec.opts.Resolver.Resolve(dest.CredentialRequest())
	if err != nil {
		return err
	}

	repo, err := r.exec.opts.Opener.Open(ctx, transport.Target{
		Name:     dest.Name,
		URL:      dest.URL,
		Region:   dest.Region,
		Endpoint: dest.Endpoint,
	}, creds)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	if !coord.IsSnapshot() && !r.exec.opts.AllowOverwrite {
		if err := r.checkConflict(ctx, repo); err != nil {
			return err
		}
	}

	var sigs map[artifacts.Kind][]byte
	if r.dp.Sign {
		if sigs, err = r.sign(ctx); err != nil {
			return err
		}
	}

	groups := make([][]payload, 0, len(r.dp.Groups))
	for _, g := range r.dp.Groups {
		p, err := r.groupPayloads(g, sigs)
		if err != nil {
			return err
		}
		groups = append(groups, p)
	}

	for i, g := range groups {
		step := "upload:" + string(r.dp.Groups[i].Artifact.Kind)
		if err := r.upload(ctx, repo, step, g); err != nil {
			return err
		}
	}
	return r.updateMetadata(ctx, repo)
}

func (r *destinationRun) runner(step string) *retry.Runner {
	runner := retry.NewRunner(r.exec.opts.Policy).WithObserver(func(attempt int, delay time.Duration, err error) {
		r.exec.opts.Recorder.IncRetry(r.dp.Destination.Name, step)
		r.log.Warn("Retrying step",
			logfields.Step(step),
			logfields.Attempt(attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	})
	if r.exec.sleep != nil {
		runner = runner.WithSleep(r.exec.sleep)
	}
	return runner
}

func (r *destinationRun) checkConflict(ctx context.Context, repo transport.Repository) error {
	coord := r.plan.Coordinate
	dest := r.dp.Destination.Name
	if l := r.exec.opts.Ledger; l != nil {
		published, err := l.IsPublished(ctx, coord, dest)
		switch {
		case err != nil:
			r.log.Warn("Ledger lookup failed; relying on the repository", logfields.Error(err))
		case published:
			return conflictError(coord, dest, "the local ledger records a successful publication")
		}
	}

	// The index is written last, so a release that failed part way is not
	// listed and may be re-run.
	var listed bool
	_, err := r.runner("conflict-check").Do(ctx, func(ctx context.Context, _ int) error {
		cctx, cancel := context.WithTimeout(ctx, r.exec.opts.UploadTimeout)
		defer cancel()
		data, found, err := repo.Get(cctx, coord.MetadataPath())
		if err != nil || !found {
			listed = false
			return err
		}
		meta, err := pom.ParseMetadata(data)
		if err != nil {
			r.log.Warn("Unreadable repository index; treating version as unpublished", logfields.Error(err))
			listed = false
			return nil
		}
		listed = slices.Contains(meta.Versioning.Versions, coord.Version)
		return nil
	})
	if err != nil {
		return err
	}
	if listed {
		return conflictError(coord, dest, repo.Location(coord.MetadataPath())+" lists "+coord.Version)
	}
	return nil
}

func conflictError(coord coordinate.Coordinate, dest, evidence string) error {
	return ferrors.ConflictError(fmt.Sprintf("release %s is already published to %s", coord, dest)).
		WithContext("destination", dest).
		WithContext("evidence", evidence).
		WithHint("release versions are immutable; bump the version or pass --allow-overwrite").
		Build()
}

func (r *destinationRun) sign(ctx context.Context) (map[artifacts.Kind][]byte, error) {
	signer, err := r.exec.signer()
	if err != nil {
		return nil, err
	}
	sigs := make(map[artifacts.Kind][]byte, len(r.plan.Artifacts.Artifacts))
	for _, a := range r.plan.Artifacts.Artifacts {
		var sig []byte
		_, err := r.runner("sign").Do(ctx, func(ctx context.Context, _ int) error {
			sctx, cancel := context.WithTimeout(ctx, r.exec.opts.SigningTimeout)
			defer cancel()
			start := r.exec.now()
			s, err := signer.SignFile(sctx, a.Path)
			r.exec.opts.Recorder.ObserveSigningDuration(r.exec.now().Sub(start))
			if err != nil {
				return err
			}
			sig = s
			return nil
		})
		if err != nil {
			return nil, err
		}
		sigs[a.Kind] = sig
		r.log.Debug("Signed artifact", logfields.Classifier(string(a.Kind)), slog.String("key_id", signer.KeyID()))
	}
	return sigs, nil
}

func (r *destinationRun) groupPayloads(g UploadGroup, sigs map[artifacts.Kind][]byte) ([]payload, error) {
	digests, err := checksum.File(g.Artifact.Path, r.dp.ChecksumAlgorithms...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryArtifact, "cannot checksum artifact").
			WithContext("path", g.Artifact.Path).
			Build()
	}
	sig := sigs[g.Artifact.Kind]
	var sigDigests checksum.Digests
	if sig != nil {
		sigDigests = checksum.Bytes(sig, r.dp.ChecksumAlgorithms...)
	}

	out := make([]payload, 0, len(g.Files))
	for _, f := range g.Files {
		p := payload{remote: f.RemotePath}
		switch f.Role {
		case RoleArtifact:
			p.path = g.Artifact.Path
		case RoleChecksum:
			p.data = []byte(digests[f.Algorithm])
		case RoleSignature:
			p.data = sig
		case RoleSignatureChecksum:
			p.data = []byte(sigDigests[f.Algorithm])
		}
		if p.path == "" && p.data == nil {
			return nil, ferrors.InternalError(fmt.Sprintf("no content planned for %s", f.RemotePath)).Build()
		}
		out = append(out, p)
	}
	return out, nil
}

// upload puts every file of a group; any failure retries the whole group.
func (r *destinationRun) upload(ctx context.Context, repo transport.Repository, step string, files []payload) error {
	attempts, err := r.runner(step).Do(ctx, func(ctx context.Context, attempt int) error {
		for _, p := range files {
			if err := r.put(ctx, repo, p); err != nil {
				r.exec.opts.Recorder.IncUploadAttempt(r.dp.Destination.Name, false)
				return err
			}
			r.exec.opts.Recorder.IncUploadAttempt(r.dp.Destination.Name, true)
		}
		r.log.Debug("Group uploaded", logfields.Step(step), logfields.Attempt(attempt))
		return nil
	})
	r.res.Attempts += attempts
	if err != nil {
		return err
	}
	for _, p := range files {
		r.res.Uploaded = append(r.res.Uploaded, p.remote)
	}
	return nil
}

func (r *destinationRun) put(ctx context.Context, repo transport.Repository, p payload) error {
	uctx, cancel := context.WithTimeout(ctx, r.exec.opts.UploadTimeout)
	defer cancel()

	if p.path == "" {
		return repo.Put(uctx, p.remote, bytes.NewReader(p.data), int64(len(p.data)))
	}
	f, err := os.Open(p.path)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryArtifact, "cannot open artifact").
			WithContext("path", p.path).
			Build()
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryArtifact, "cannot stat artifact").
			WithContext("path", p.path).
			Build()
	}
	return repo.Put(uctx, p.remote, f, info.Size())
}

// updateMetadata merges this version into the artifact-level index. Fetch,
// merge and upload form one retried group.
func (r *destinationRun) updateMetadata(ctx context.Context, repo transport.Repository) error {
	coord := r.plan.Coordinate
	var files []payload
	attempts, err := r.runner("metadata").Do(ctx, func(ctx context.Context, _ int) error {
		gctx, cancel := context.WithTimeout(ctx, r.exec.opts.UploadTimeout)
		existing, _, err := repo.Get(gctx, coord.MetadataPath())
		cancel()
		if err != nil {
			return err
		}
		merged, err := pom.MergeMetadata(existing, coord, r.exec.now())
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryUpload, "cannot merge "+pom.MetadataFile).
				UserAction().
				WithContext("url", repo.Location(coord.MetadataPath())).
				WithHint("the remote metadata is unreadable or belongs to another artifact").
				Build()
		}
		digests := checksum.Bytes(merged, r.dp.ChecksumAlgorithms...)
		files = files[:0]
		for _, f := range r.dp.Metadata {
			p := payload{remote: f.RemotePath, data: merged}
			if f.Role == RoleChecksum {
				p.data = []byte(digests[f.Algorithm])
			}
			files = append(files, p)
		}
		for _, p := range files {
			if err := r.put(ctx, repo, p); err != nil {
				r.exec.opts.Recorder.IncUploadAttempt(r.dp.Destination.Name, false)
				return err
			}
			r.exec.opts.Recorder.IncUploadAttempt(r.dp.Destination.Name, true)
		}
		return nil
	})
	r.res.Attempts += attempts
	if err != nil {
		return err
	}
	for _, p := range files {
		r.res.Uploaded = append(r.res.Uploaded, p.remote)
	}
	return nil
}
