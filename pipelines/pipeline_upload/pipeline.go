package pipeline_upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/dedup"
	"github.com/t2bot/patient-media-repo/metrics"
	"github.com/t2bot/patient-media-repo/pipelines/steps/upload"
	"github.com/t2bot/patient-media-repo/pool"
	"github.com/t2bot/patient-media-repo/thumbnailing"
	"github.com/t2bot/patient-media-repo/transcoding"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util"
	"github.com/t2bot/patient-media-repo/validation"
)

const maxReserveAttempts = 5

type State string

const (
	StateValidating  State = "validating"
	StateHashing     State = "hashing"
	StateDedupCheck  State = "dedup_check"
	StateDeriving    State = "deriving"
	StateTranscoding State = "transcoding"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

type Dependencies struct {
	Uploads    config.UploadsConfig
	Images     config.ImagesConfig
	Videos     config.VideosConfig
	Validator  *validation.Validator
	Processor  *thumbnailing.Processor
	Transcoder *transcoding.Transcoder
	Index      dedup.Index
	Store      datastores.Store
	Pools      *pool.Pools

	// ReservationRefresh is how often a held reservation is marked as live.
	// Zero disables refreshing.
	ReservationRefresh time.Duration
}

type Pipeline struct {
	deps  Dependencies
	namer *datastores.Namer
}

func New(deps Dependencies) *Pipeline {
	return &Pipeline{deps: deps, namer: datastores.NewNamer(deps.Store)}
}

type run struct {
	ctx   rcontext.RequestContext
	state State
	kind  common.Kind
}

func (r *run) enter(s State) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	r.state = s
	r.ctx.Log.Debug("Upload entering state: ", s)
	return nil
}

// Execute ingests one upload. The bool is true when the content was already
// stored and the existing artifact (with an added reference) is returned.
func (p *Pipeline) Execute(ctx rcontext.RequestContext, r io.Reader, fileName string, contentType string) (*types.MediaArtifact, bool, error) {
	var artifact *types.MediaArtifact
	var deduplicated bool
	run := &run{ctx: ctx}
	err := p.deps.Pools.Ingest.Do(ctx, func() error {
		var err error
		artifact, deduplicated, err = p.execute(run, r, fileName, contentType)
		return err
	})
	if err != nil {
		if rej, ok := common.AsRejection(err); ok {
			metrics.Rejections.WithLabelValues(string(rej.Reason)).Inc()
			run.ctx.Log.WithField("reason", rej.Reason).Info("Upload rejected: ", rej.Detail)
		} else {
			run.ctx.Log.WithField("state", run.state).Warn("Upload failed: ", err)
		}
		kind := string(run.kind)
		if kind == "" {
			kind = "unknown"
		}
		metrics.Uploads.WithLabelValues(kind, "failed").Inc()
		run.state = StateFailed
		return nil, false, err
	}
	run.state = StateDone
	return artifact, deduplicated, nil
}

func (p *Pipeline) execute(run *run, r io.Reader, fileName string, contentType string) (*types.MediaArtifact, bool, error) {
	// Step 1: Validate and spool the upload
	if err := run.enter(StateValidating); err != nil {
		return nil, false, err
	}
	accepted, err := p.deps.Validator.Validate(run.ctx, r, fileName, contentType)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err := accepted.Close(); err != nil {
			run.ctx.Log.Warn("Error removing upload temp file: ", err)
		}
	}()
	kind := accepted.Kind()
	run.kind = kind

	// Step 2: Hash what was accepted
	if err = run.enter(StateHashing); err != nil {
		return nil, false, err
	}
	hash, size, err := util.HashFile(accepted.TempPath)
	if err != nil {
		return nil, false, err
	}
	if size != accepted.SizeBytes {
		return nil, false, fmt.Errorf("upload changed size while hashing: %d != %d", size, accepted.SizeBytes)
	}
	run.ctx = run.ctx.LogWithFields(logrus.Fields{
		"hash": util.HashPrefix(hash),
		"kind": kind,
		"size": humanize.Bytes(uint64(size)),
	})

	// Step 3: Lock the hash and find (or reserve) its artifact
	if err = run.enter(StateDedupCheck); err != nil {
		return nil, false, err
	}
	ext := accepted.Sniffed.Ext
	storedType := accepted.Sniffed.Mime
	if kind == common.KindVideo {
		ext = p.deps.Videos.Profile.Container
		storedType = "video/" + p.deps.Videos.Profile.Container
	}
	candidate := &types.MediaArtifact{
		ContentHash:      hash,
		OriginalFilename: accepted.FileName,
		ByteSize:         size,
		DeclaredMime:     accepted.DeclaredMime,
		ContentType:      storedType,
		Kind:             kind,
		Width:            accepted.Width,
		Height:           accepted.Height,
	}
	if accepted.Probe != nil {
		candidate.Duration = accepted.Probe.Duration
	}
	key, reservation, err := p.reserve(run, candidate, ext)
	if err != nil {
		return nil, false, err
	}
	if reservation.Outcome == dedup.OutcomeExisting {
		metrics.DedupHits.WithLabelValues(string(kind)).Inc()
		metrics.Uploads.WithLabelValues(string(kind), "deduplicated").Inc()
		run.ctx.Log.WithField("artifactId", reservation.Artifact.Id).Info("Upload matched existing media")
		return reservation.Artifact, true, nil
	}

	// We hold the reservation from here on: any failure must abandon it and
	// remove whatever this run wrote
	artifact := reservation.Artifact
	written := make([]string, 0)
	success := false
	defer func() {
		if !success {
			p.compensate(run.ctx, artifact, written)
		}
	}()
	stopRefresh := p.keepReserved(run.ctx, artifact)
	defer stopRefresh()

	// Step 4: Produce derivatives (and the canonical video)
	var derivatives map[string][]byte
	originalPath := accepted.TempPath
	if kind == common.KindImage {
		if err = run.enter(StateDeriving); err != nil {
			return nil, false, err
		}
		derivatives, err = p.deps.Processor.Derive(run.ctx, accepted.Image, p.deps.Images.Derivatives)
		if err != nil {
			return nil, false, err
		}
		accepted.Image = nil // release the decoded pixels before the writes
	} else {
		if err = run.enter(StateTranscoding); err != nil {
			return nil, false, err
		}
		var result *transcoding.TranscodeResult
		err = p.deps.Pools.Transcode.Do(run.ctx, func() error {
			var terr error
			result, terr = p.deps.Transcoder.Transcode(run.ctx, accepted.TempPath, accepted.Probe)
			return terr
		})
		if err != nil {
			if ctxErr := run.ctx.Err(); ctxErr != nil {
				return nil, false, ctxErr
			}
			return nil, false, err
		}
		defer func() {
			if err := result.Close(); err != nil {
				run.ctx.Log.Warn("Error removing transcoded file: ", err)
			}
		}()
		originalPath = result.Path
		artifact.Width = result.Width
		artifact.Height = result.Height
		artifact.Duration = result.Duration
		artifact.VideoCodec = result.Codec
		derivatives = map[string][]byte{config.ThumbnailLabel: result.Poster}
	}

	// Step 5: Write everything to the store
	if err = run.enter(StatePersisting); err != nil {
		return nil, false, err
	}
	storedSize, err := p.put(run.ctx, key.OriginalPath(), func() (io.ReadCloser, error) {
		return os.Open(originalPath)
	})
	if err != nil {
		return nil, false, err
	}
	written = append(written, key.OriginalPath())
	artifact.StoredSize = storedSize

	for _, size := range p.deps.Images.Derivatives {
		b, ok := derivatives[size.Label]
		if !ok {
			continue
		}
		dpath := key.DerivativePath(size.Label)
		if _, err = p.put(run.ctx, dpath, func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}); err != nil {
			return nil, false, err
		}
		written = append(written, dpath)
		if size.Label == config.ThumbnailLabel {
			artifact.ThumbnailPath = dpath
		} else {
			artifact.Derivatives[size.Label] = dpath
		}
		metrics.DerivativesGenerated.WithLabelValues(size.Label).Inc()
	}

	// Step 6: Publish the artifact
	if err = p.deps.Index.Complete(run.ctx, artifact); err != nil {
		return nil, false, err
	}
	success = true

	metrics.Uploads.WithLabelValues(string(kind), "stored").Inc()
	run.ctx.Log.WithField("artifactId", artifact.Id).Info("Upload stored")
	return artifact, false, nil
}

// reserve finds or reserves the artifact for a content hash. The distributed
// lock is only held for this, so an identical upload never waits behind a
// whole transcode for the lock; it waits on the reservation instead.
func (p *Pipeline) reserve(run *run, candidate *types.MediaArtifact, ext string) (*datastores.StorageKey, *dedup.Reservation, error) {
	unlockFn, err := upload.LockForUpload(run.ctx, candidate.ContentHash)
	if err != nil {
		return nil, nil, err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer unlockFn()

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		key, err := p.namer.AllocateUnique(run.ctx, candidate.Kind, ext, util.FromMillis(util.NowMillis()))
		if err != nil {
			return nil, nil, storageError(err)
		}
		attemptCandidate := *candidate
		attemptCandidate.Id = key.Id
		attemptCandidate.StoragePath = key.OriginalPath()
		attemptCandidate.Derivatives = map[string]string{}
		attemptCandidate.CreatedAt = key.CreatedAt

		reservation, err := p.deps.Index.FindOrReserve(run.ctx, &attemptCandidate)
		if errors.Is(err, common.ErrIdTaken) {
			run.ctx.Log.Warn("Generated id already in use - trying another")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return key, reservation, nil
	}
	return nil, nil, errors.New("failed to reserve an unused id")
}

// keepReserved refreshes a held reservation until the returned function is
// called, so a long upload is never taken for an abandoned one.
func (p *Pipeline) keepReserved(ctx rcontext.RequestContext, artifact *types.MediaArtifact) func() {
	if p.deps.ReservationRefresh <= 0 {
		return func() {}
	}
	held := &types.MediaArtifact{Id: artifact.Id, ContentHash: artifact.ContentHash}
	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.deps.ReservationRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.deps.Index.Refresh(ctx, held); err != nil {
					ctx.Log.Warn("Error refreshing upload reservation: ", err)
				}
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

func (p *Pipeline) put(ctx rcontext.RequestContext, path string, open datastores.Opener) (int64, error) {
	n, err := datastores.PutWithRetry(ctx, p.deps.Store, path, open, p.deps.Uploads.StoreAttempts, p.deps.Uploads.StoreBackoff())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, storageError(err)
	}
	return n, nil
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
}

// compensate undoes a failed run. It must finish even when the request was
// cancelled, so it runs detached from the request context.
func (p *Pipeline) compensate(ctx rcontext.RequestContext, artifact *types.MediaArtifact, written []string) {
	cctx := ctx.WithContext(context.Background())
	for _, wpath := range written {
		if err := p.deps.Store.Delete(cctx, wpath); err != nil {
			sentry.CaptureException(err)
			cctx.Log.Warn("Error removing partially stored file: ", err)
		}
	}
	if err := p.deps.Index.Abandon(cctx, artifact); err != nil {
		sentry.CaptureException(err)
		cctx.Log.Warn("Error abandoning reservation: ", err)
	}
}
