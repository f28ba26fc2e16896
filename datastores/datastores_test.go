package datastores

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/types"
)

func rctx() rcontext.RequestContext {
	return rcontext.Wrap(context.Background(), nil)
}

func testKey(t *testing.T, kind common.Kind, ext string) *StorageKey {
	k, err := NewNamer(nil).Allocate(kind, ext, time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	return k
}

func TestStorageKeyPaths(t *testing.T) {
	k := testKey(t, common.KindImage, "jpg")
	assert.Equal(t, "image/2024/03/originals/"+k.Id+".jpg", k.OriginalPath())
	assert.Equal(t, "image/2024/03/thumbnails/"+k.Id+".jpg", k.ThumbnailPath())
	assert.Equal(t, "image/2024/03/thumbnails/"+k.Id+"-preview.jpg", k.DerivativePath("preview"))
	assert.Equal(t, k.ThumbnailPath(), k.DerivativePath("thumbnail"))

	for _, p := range []string{k.OriginalPath(), k.ThumbnailPath(), k.DerivativePath("preview")} {
		assert.True(t, IsValidPath(p), p)
	}
}

func TestStorageKeyUsesUtcMonth(t *testing.T) {
	loc := time.FixedZone("ahead", 10*60*60)
	k, err := NewNamer(nil).Allocate(common.KindVideo, "mp4", time.Date(2024, 4, 1, 5, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(k.OriginalPath(), "video/2024/03/originals/"))
}

func TestAllocateRejectsBadInput(t *testing.T) {
	n := NewNamer(nil)
	_, err := n.Allocate("document", "pdf", time.Now())
	assert.Error(t, err)
	_, err = n.Allocate(common.KindImage, "../jpg", time.Now())
	assert.Error(t, err)
}

func TestKeyForRoundTrip(t *testing.T) {
	k := testKey(t, common.KindVideo, "mp4")
	m := &types.MediaArtifact{Id: k.Id, Kind: k.Kind, StoragePath: k.OriginalPath(), CreatedAt: k.CreatedAt}
	assert.Equal(t, k, KeyFor(m))
}

func TestIsValidPath(t *testing.T) {
	for _, p := range []string{
		"",
		"../image/2024/03/originals/0123456789abcdef0123456789abcdef.jpg",
		"/image/2024/03/originals/0123456789abcdef0123456789abcdef.jpg",
		"image/2024/13/originals/0123456789abcdef0123456789abcdef.jpg",
		"image/2024/03/originals/passwd.jpg",
		"image/2024/03/originals/0123456789abcdef0123456789abcdef.jpg/../../x",
		"audio/2024/03/originals/0123456789abcdef0123456789abcdef.mp3",
		"image/2024/03/thumbnails/0123456789abcdef0123456789abcdef.png",
	} {
		assert.False(t, IsValidPath(p), p)
	}
}

func TestAllocateUniqueSkipsExisting(t *testing.T) {
	store := &collidingStore{collisions: 3}
	k, err := NewNamer(store).AllocateUnique(rctx(), common.KindImage, "png", time.Now())
	require.NoError(t, err)
	assert.NotNil(t, k)
	assert.Equal(t, int32(4), store.checks)

	store = &collidingStore{collisions: 100}
	_, err = NewNamer(store).AllocateUnique(rctx(), common.KindImage, "png", time.Now())
	assert.Error(t, err)
}

type collidingStore struct {
	Store
	collisions int32
	checks     int32
}

func (s *collidingStore) Exists(ctx context.Context, p string) (bool, error) {
	n := atomic.AddInt32(&s.checks, 1)
	return n <= s.collisions, nil
}

func newFileStore(t *testing.T) (Store, string) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	return s, dir
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, _ := newFileStore(t)
	p := testKey(t, common.KindImage, "png").OriginalPath()

	exists, err := s.Exists(rctx(), p)
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := s.Put(rctx(), p, bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	exists, err = s.Exists(rctx(), p)
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := s.Get(rctx(), p)
	require.NoError(t, err)
	_, err = r.Seek(3, io.SeekStart)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "tent", string(b))

	require.NoError(t, s.Delete(rctx(), p))
	_, err = s.Get(rctx(), p)
	assert.ErrorIs(t, err, common.ErrMediaNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(rctx(), p))
}

func TestFileStoreNeverOverwrites(t *testing.T) {
	s, _ := newFileStore(t)
	p := testKey(t, common.KindImage, "png").OriginalPath()
	_, err := s.Put(rctx(), p, bytes.NewReader([]byte("first")))
	require.NoError(t, err)

	_, err = s.Put(rctx(), p, bytes.NewReader([]byte("second")))
	assert.ErrorIs(t, err, common.ErrPathExists)

	r, err := s.Get(rctx(), p)
	require.NoError(t, err)
	defer r.Close()
	b, _ := io.ReadAll(r)
	assert.Equal(t, "first", string(b))
}

func TestFileStoreFailedWriteLeavesNothing(t *testing.T) {
	s, dir := newFileStore(t)
	p := testKey(t, common.KindImage, "png").OriginalPath()

	broken := io.MultiReader(bytes.NewReader([]byte("partial data")), iotest.ErrReader(errors.New("connection reset")))
	_, err := s.Put(rctx(), p, broken)
	require.Error(t, err)

	exists, err := s.Exists(rctx(), p)
	require.NoError(t, err)
	assert.False(t, exists)

	// no temp files left either
	var files []string
	_ = filepath.Walk(dir, func(fpath string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, fpath)
		}
		return nil
	})
	assert.Empty(t, files)
}

func TestFileStoreCancelledWrite(t *testing.T) {
	s, _ := newFileStore(t)
	p := testKey(t, common.KindImage, "png").OriginalPath()
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Put(cctx, p, bytes.NewReader([]byte("content")))
	assert.ErrorIs(t, err, context.Canceled)
	exists, _ := s.Exists(rctx(), p)
	assert.False(t, exists)
}

func TestFileStoreRejectsForeignPaths(t *testing.T) {
	s, _ := newFileStore(t)
	_, err := s.Put(rctx(), "../../escape.jpg", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, common.ErrInvalidPath)
	_, err = s.Get(rctx(), "/etc/passwd")
	assert.ErrorIs(t, err, common.ErrInvalidPath)
}

type flakyStore struct {
	Store
	failures int32
	puts     int32
}

func (s *flakyStore) Put(ctx context.Context, p string, r io.Reader) (int64, error) {
	if atomic.AddInt32(&s.puts, 1) <= s.failures {
		return 0, errors.New("503 slow down")
	}
	return s.Store.Put(ctx, p, r)
}

func opener(b []byte) Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

func TestPutWithRetryRecovers(t *testing.T) {
	fs, _ := newFileStore(t)
	s := &flakyStore{Store: fs, failures: 2}
	p := testKey(t, common.KindImage, "png").OriginalPath()

	n, err := PutWithRetry(rctx(), s, p, opener([]byte("abc")), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int32(3), s.puts)
}

func TestPutWithRetryGivesUp(t *testing.T) {
	fs, _ := newFileStore(t)
	s := &flakyStore{Store: fs, failures: 10}
	p := testKey(t, common.KindImage, "png").OriginalPath()

	_, err := PutWithRetry(rctx(), s, p, opener([]byte("abc")), 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, int32(3), s.puts)
}

func TestPutWithRetryDoesNotRetryCollisions(t *testing.T) {
	fs, _ := newFileStore(t)
	s := &flakyStore{Store: fs}
	p := testKey(t, common.KindImage, "png").OriginalPath()
	_, err := fs.Put(rctx(), p, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	_, err = PutWithRetry(rctx(), s, p, opener([]byte("abc")), 3, time.Millisecond)
	assert.ErrorIs(t, err, common.ErrPathExists)
	assert.Equal(t, int32(1), s.puts)
}
