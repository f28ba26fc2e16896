package pipeline_upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/dedup"
	"github.com/t2bot/patient-media-repo/pool"
	"github.com/t2bot/patient-media-repo/redislib"
	"github.com/t2bot/patient-media-repo/thumbnailing"
	"github.com/t2bot/patient-media-repo/transcoding"
	"github.com/t2bot/patient-media-repo/transcoding/transcodingtest"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util"
	"github.com/t2bot/patient-media-repo/validation"
)

type harness struct {
	pipeline *Pipeline
	engine   *transcodingtest.Engine
	index    dedup.Index
	store    datastores.Store
	storeDir string
	tempDir  string
}

// failingStore fails every Put whose path contains failOn.
type failingStore struct {
	datastores.Store
	failOn string
}

func (s *failingStore) Put(ctx context.Context, p string, r io.Reader) (int64, error) {
	if s.failOn != "" && strings.Contains(p, s.failOn) {
		return 0, errors.New("disk on fire")
	}
	return s.Store.Put(ctx, p, r)
}

func newHarness(t *testing.T, wrap func(datastores.Store) datastores.Store) *harness {
	c := config.NewDefaultMainConfig()
	c.Uploads.StoreAttempts = 2
	c.Uploads.StoreBackoffMillis = 1

	storeDir := t.TempDir()
	tempDir := t.TempDir()
	store, err := datastores.NewFileStore(storeDir)
	require.NoError(t, err)
	if wrap != nil {
		store = wrap(store)
	}

	pools, err := pool.NewPools(config.WorkersConfig{Ingest: 4, Transcode: 1})
	require.NoError(t, err)
	t.Cleanup(pools.Drain)

	engine := &transcodingtest.Engine{}
	images := thumbnailing.NewProcessor(c.Images)
	transcoder := transcoding.NewTranscoder(c.Videos, engine, images, c.Images.Derivatives[0], tempDir)
	index := dedup.NewMemoryIndex()

	return &harness{
		pipeline: New(Dependencies{
			Uploads:    c.Uploads,
			Images:     c.Images,
			Videos:     c.Videos,
			Validator:  validation.NewValidator(c.Uploads, c.Videos, images, transcoder, tempDir),
			Processor:  images,
			Transcoder: transcoder,
			Index:      index,
			Store:      store,
			Pools:      pools,
		}),
		engine:   engine,
		index:    index,
		store:    store,
		storeDir: storeDir,
		tempDir:  tempDir,
	}
}

func (h *harness) storedFiles(t *testing.T) []string {
	files := make([]string, 0)
	err := filepath.WalkDir(h.storeDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(h.storeDir, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func (h *harness) assertNoTempFiles(t *testing.T) {
	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func ctx() rcontext.RequestContext {
	return rcontext.Wrap(context.Background(), nil)
}

func photo(w int, h int, shade uint8) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	_ = png.Encode(buf, img)
	return buf.Bytes()
}

func TestUploadImage(t *testing.T) {
	h := newHarness(t, nil)

	m, deduplicated, err := h.pipeline.Execute(ctx(), bytes.NewReader(photo(1200, 600, 1)), "Patient Jane Doe wound.png", "image/png")
	require.NoError(t, err)
	assert.False(t, deduplicated)
	assert.Equal(t, common.KindImage, m.Kind)
	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, 1200, m.Width)
	assert.Equal(t, 600, m.Height)
	assert.Equal(t, int64(1), m.RefCount)
	assert.Equal(t, m.ByteSize, m.StoredSize)
	assert.Equal(t, "Patient Jane Doe wound.png", m.OriginalFilename)

	prefix := "image/" + m.CreatedAt.Format("2006/01")
	assert.Equal(t, prefix+"/originals/"+m.Id+".png", m.StoragePath)
	assert.Equal(t, prefix+"/thumbnails/"+m.Id+".jpg", m.ThumbnailPath)
	assert.Equal(t, prefix+"/thumbnails/"+m.Id+"-preview.jpg", m.Derivatives["preview"])

	files := h.storedFiles(t)
	assert.ElementsMatch(t, []string{m.StoragePath, m.ThumbnailPath, m.Derivatives["preview"]}, files)
	for _, f := range files {
		assert.NotContains(t, f, "Jane")
		assert.NotContains(t, f, "wound")
	}

	stored, err := h.index.GetById(ctx(), m.Id)
	require.NoError(t, err)
	assert.Equal(t, m.ThumbnailPath, stored.ThumbnailPath)
	h.assertNoTempFiles(t)
}

func TestUploadSameContentTwice(t *testing.T) {
	h := newHarness(t, nil)
	content := photo(64, 64, 2)

	first, deduplicated, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "a.png", "image/png")
	require.NoError(t, err)
	assert.False(t, deduplicated)

	second, deduplicated, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "renamed.png", "image/png")
	require.NoError(t, err)
	assert.True(t, deduplicated)
	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, int64(2), second.RefCount)
	assert.Equal(t, "a.png", second.OriginalFilename)

	assert.Len(t, h.storedFiles(t), 3)
}

func TestUploadSameContentConcurrently(t *testing.T) {
	h := newHarness(t, nil)
	content := photo(300, 200, 3)

	const uploads = 8
	ids := make([]string, uploads)
	errs := make([]error, uploads)
	deduped := make([]bool, uploads)
	wg := &sync.WaitGroup{}
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, d, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "same.png", "image/png")
			errs[i] = err
			deduped[i] = d
			if m != nil {
				ids[i] = m.Id
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < uploads; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if !deduped[i] {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Len(t, h.storedFiles(t), 3)

	m, err := h.index.GetById(ctx(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(uploads), m.RefCount)
}

func TestUploadRejectionWritesNothing(t *testing.T) {
	h := newHarness(t, nil)

	_, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(photo(8, 8, 4)), "photo.mp4", "video/mp4")
	assert.True(t, common.IsRejection(err, common.RejectKindMismatch))

	_, _, err = h.pipeline.Execute(ctx(), strings.NewReader("<html><script>alert(1)</script>"), "photo.png", "image/png")
	assert.True(t, common.IsRejection(err, common.RejectKindMismatch))

	assert.Empty(t, h.storedFiles(t))
	h.assertNoTempFiles(t)
}

func TestUploadForeignVideoIsTranscoded(t *testing.T) {
	h := newHarness(t, nil)
	content := transcodingtest.ForeignVideo(10*time.Second, "clip")

	m, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, 1, h.engine.Transcodes())
	assert.Equal(t, common.KindVideo, m.Kind)
	assert.Equal(t, "video/mp4", m.ContentType)
	assert.Equal(t, "h264", m.VideoCodec)
	assert.Equal(t, 640, m.Width)
	assert.Equal(t, 360, m.Height)
	assert.Equal(t, 10*time.Second, m.Duration)
	assert.Equal(t, int64(len(content)), m.ByteSize)
	assert.NotEqual(t, m.ByteSize, m.StoredSize)

	prefix := "video/" + m.CreatedAt.Format("2006/01")
	assert.Equal(t, prefix+"/originals/"+m.Id+".mp4", m.StoragePath)
	assert.Equal(t, prefix+"/thumbnails/"+m.Id+".jpg", m.ThumbnailPath)
	assert.ElementsMatch(t, []string{m.StoragePath, m.ThumbnailPath}, h.storedFiles(t))
	h.assertNoTempFiles(t)
}

func TestUploadCanonicalVideoPassesThrough(t *testing.T) {
	h := newHarness(t, nil)
	content := transcodingtest.CanonicalVideo(5*time.Second, "canon")

	m, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, 0, h.engine.Transcodes())

	stored, err := os.ReadFile(filepath.Join(h.storeDir, filepath.FromSlash(m.StoragePath)))
	require.NoError(t, err)
	assert.Equal(t, content, stored)
	assert.Equal(t, m.ByteSize, m.StoredSize)
}

func TestUploadVideoTooLong(t *testing.T) {
	h := newHarness(t, nil)
	content := transcodingtest.ForeignVideo(121*time.Second, "long")

	_, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mov", "video/quicktime")
	assert.True(t, common.IsRejection(err, common.RejectDurationExceeded))
	assert.Equal(t, 0, h.engine.Transcodes())
	assert.Empty(t, h.storedFiles(t))
}

func TestUploadTranscodeFailureAbandons(t *testing.T) {
	h := newHarness(t, nil)
	content := transcodingtest.ForeignVideo(3*time.Second, "fails")
	h.engine.TranscodeErr = errors.New("encoder exploded")

	_, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mp4", "video/mp4")
	assert.ErrorIs(t, err, common.ErrTranscodeFailed)
	assert.Empty(t, h.storedFiles(t))
	h.assertNoTempFiles(t)

	// the hash is free again once the reservation is abandoned
	h.engine.TranscodeErr = nil
	m, deduplicated, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mp4", "video/mp4")
	require.NoError(t, err)
	assert.False(t, deduplicated)
	assert.Equal(t, int64(1), m.RefCount)
}

func TestUploadStorageFailureRemovesWrittenFiles(t *testing.T) {
	h := newHarness(t, func(s datastores.Store) datastores.Store {
		return &failingStore{Store: s, failOn: "-preview"}
	})

	_, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(photo(400, 400, 5)), "photo.png", "image/png")
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.Empty(t, h.storedFiles(t))
	h.assertNoTempFiles(t)
}

func TestUploadCancelled(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Delay = 5 * time.Second
	content := transcodingtest.ForeignVideo(3*time.Second, "cancel")

	c, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, _, err := h.pipeline.Execute(rcontext.Wrap(c, nil), bytes.NewReader(content), "clip.mp4", "video/mp4")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Empty(t, h.storedFiles(t))
	h.assertNoTempFiles(t)

	h.engine.Delay = 0
	_, deduplicated, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mp4", "video/mp4")
	require.NoError(t, err)
	assert.False(t, deduplicated)
}

func TestUploadSameContentWithDistributedLock(t *testing.T) {
	m := miniredis.RunT(t)
	redislib.Configure(config.RedisConfig{
		Enabled: true,
		Shards:  []config.RedisShardConfig{{Name: "test", Address: m.Addr()}},
	})
	t.Cleanup(func() {
		redislib.Configure(config.RedisConfig{Enabled: false})
	})

	h := newHarness(t, nil)
	h.engine.Delay = 1500 * time.Millisecond
	content := transcodingtest.ForeignVideo(4*time.Second, "locked")
	hash, _, err := util.HashStream(bytes.NewReader(content))
	require.NoError(t, err)

	type outcome struct {
		id           string
		deduplicated bool
		err          error
	}
	upload := func(results chan<- outcome) {
		a, d, err := h.pipeline.Execute(ctx(), bytes.NewReader(content), "clip.mp4", "video/mp4")
		o := outcome{deduplicated: d, err: err}
		if a != nil {
			o.id = a.Id
		}
		results <- o
	}

	results := make(chan outcome, 2)
	go upload(results)
	require.Eventually(t, func() bool {
		return h.engine.Transcodes() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// the lock covers the reservation only, not the transcode
	assert.False(t, m.Exists("mutex-upload-"+hash))

	go upload(results)
	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.id, second.id)
	assert.NotEqual(t, first.deduplicated, second.deduplicated)
	assert.Equal(t, 1, h.engine.Transcodes())
	assert.False(t, m.Exists("mutex-upload-"+hash))

	stored, err := h.index.GetById(ctx(), first.id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.RefCount)
}

type refreshCountingIndex struct {
	dedup.Index
	refreshes int32
}

func (x *refreshCountingIndex) Refresh(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	atomic.AddInt32(&x.refreshes, 1)
	return x.Index.Refresh(ctx, artifact)
}

func TestUploadRefreshesReservationWhileWorking(t *testing.T) {
	h := newHarness(t, nil)
	counting := &refreshCountingIndex{Index: h.index}
	h.pipeline.deps.Index = counting
	h.pipeline.deps.ReservationRefresh = 20 * time.Millisecond
	h.engine.Delay = 300 * time.Millisecond

	m, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(transcodingtest.ForeignVideo(3*time.Second, "slow")), "clip.mp4", "video/mp4")
	require.NoError(t, err)
	refreshes := atomic.LoadInt32(&counting.refreshes)
	assert.GreaterOrEqual(t, refreshes, int32(3))

	// refreshing stops with the upload
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, refreshes, atomic.LoadInt32(&counting.refreshes))

	stored, err := h.index.GetById(ctx(), m.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.RefCount)
}

func TestUploadCancelledWhileQueued(t *testing.T) {
	h := newHarness(t, nil)
	pools, err := pool.NewPools(config.WorkersConfig{Ingest: 1, Transcode: 1})
	require.NoError(t, err)
	t.Cleanup(pools.Drain)
	h.pipeline.deps.Pools = pools
	h.engine.Delay = 2 * time.Second

	busy := make(chan error, 1)
	go func() {
		_, _, err := h.pipeline.Execute(ctx(), bytes.NewReader(transcodingtest.ForeignVideo(3*time.Second, "busy")), "clip.mp4", "video/mp4")
		busy <- err
	}()
	require.Eventually(t, func() bool {
		return h.engine.Transcodes() == 1
	}, 5*time.Second, 10*time.Millisecond)

	c, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, err = h.pipeline.Execute(rcontext.Wrap(c, nil), bytes.NewReader(photo(32, 32, 6)), "queued.png", "image/png")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, <-busy)
	assert.Len(t, h.storedFiles(t), 2) // only the busy video and its poster
	h.assertNoTempFiles(t)
}
