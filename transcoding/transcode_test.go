package transcoding_test

import (
	"context"
	"errors"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/thumbnailing"
	"github.com/t2bot/patient-media-repo/transcoding"
	"github.com/t2bot/patient-media-repo/transcoding/transcodingtest"
)

func newTranscoder(t *testing.T, engine transcoding.Engine) (*transcoding.Transcoder, string) {
	c := config.NewDefaultMainConfig()
	dir := t.TempDir()
	return transcoding.NewTranscoder(c.Videos, engine, thumbnailing.NewProcessor(c.Images), c.Images.Derivatives[0], dir), dir
}

func writeFile(t *testing.T, dir string, b []byte) string {
	fpath := path.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(fpath, b, 0600))
	return fpath
}

func ctx() rcontext.RequestContext {
	return rcontext.Wrap(context.Background(), nil)
}

func TestCanonicalShortCircuit(t *testing.T) {
	engine := &transcodingtest.Engine{}
	tr, dir := newTranscoder(t, engine)
	in := writeFile(t, dir, transcodingtest.CanonicalVideo(10*time.Second, "a"))

	probe, err := tr.Probe(ctx(), in)
	require.NoError(t, err)
	assert.True(t, tr.IsCanonical(probe))

	res, err := tr.Transcode(ctx(), in, probe)
	require.NoError(t, err)
	defer res.Close()
	assert.True(t, res.Passthrough)
	assert.Equal(t, in, res.Path)
	assert.Equal(t, 0, engine.Transcodes())
	assert.NotEmpty(t, res.Poster)

	// passthrough results never remove the caller's file
	require.NoError(t, res.Close())
	_, err = os.Stat(in)
	assert.NoError(t, err)
}

func TestConvertsForeignVideo(t *testing.T) {
	engine := &transcodingtest.Engine{}
	tr, dir := newTranscoder(t, engine)
	in := writeFile(t, dir, transcodingtest.ForeignVideo(10*time.Second, "b"))

	probe, err := tr.Probe(ctx(), in)
	require.NoError(t, err)
	assert.False(t, tr.IsCanonical(probe))

	res, err := tr.Transcode(ctx(), in, probe)
	require.NoError(t, err)
	assert.False(t, res.Passthrough)
	assert.NotEqual(t, in, res.Path)
	assert.Equal(t, "h264", res.Codec)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 360, res.Height)
	assert.Equal(t, 1, engine.Transcodes())

	require.NoError(t, res.Close())
	_, err = os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestEngineFailureIsTranscodeError(t *testing.T) {
	engine := &transcodingtest.Engine{TranscodeErr: errors.New("exit status 1")}
	tr, dir := newTranscoder(t, engine)
	in := writeFile(t, dir, transcodingtest.ForeignVideo(10*time.Second, "c"))
	probe, err := tr.Probe(ctx(), in)
	require.NoError(t, err)

	_, err = tr.Transcode(ctx(), in, probe)
	var te *transcoding.TranscodeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "transcode", te.Op)
	assert.ErrorIs(t, err, common.ErrTranscodeFailed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // only the input is left behind
}

func TestTruncatedOutputRejected(t *testing.T) {
	engine := &transcodingtest.Engine{Truncate: true}
	tr, dir := newTranscoder(t, engine)
	in := writeFile(t, dir, transcodingtest.ForeignVideo(20*time.Second, "d"))
	probe, err := tr.Probe(ctx(), in)
	require.NoError(t, err)

	_, err = tr.Transcode(ctx(), in, probe)
	var te *transcoding.TranscodeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "verify", te.Op)
}

func TestTranscodeTimeout(t *testing.T) {
	engine := &transcodingtest.Engine{Delay: 5 * time.Second}
	c := config.NewDefaultMainConfig()
	c.Videos.TimeoutSeconds = 1
	dir := t.TempDir()
	tr := transcoding.NewTranscoder(c.Videos, engine, thumbnailing.NewProcessor(c.Images), c.Images.Derivatives[0], dir)
	in := writeFile(t, dir, transcodingtest.ForeignVideo(10*time.Second, "e"))
	probe, err := tr.Probe(ctx(), in)
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.Transcode(ctx(), in, probe)
	assert.ErrorIs(t, err, common.ErrTranscodeFailed)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRefusesOverlongInput(t *testing.T) {
	engine := &transcodingtest.Engine{}
	tr, dir := newTranscoder(t, engine)
	in := writeFile(t, dir, transcodingtest.CanonicalVideo(121*time.Second, "f"))
	probe, err := tr.Probe(ctx(), in)
	require.NoError(t, err)

	_, err = tr.Transcode(ctx(), in, probe)
	assert.ErrorIs(t, err, common.ErrTranscodeFailed)
	assert.Equal(t, 0, engine.Transcodes())
}
