package validation

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/t2bot/patient-media-repo/common"
)

func pngBytes(w int, h int) []byte {
	buf := &bytes.Buffer{}
	_ = png.Encode(buf, image.NewNRGBA(image.Rect(0, 0, w, h)))
	return buf.Bytes()
}

func jpegBytes(w int, h int) []byte {
	buf := &bytes.Buffer{}
	_ = jpeg.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil)
	return buf.Bytes()
}

func TestSniffImages(t *testing.T) {
	s, ok := Sniff(pngBytes(4, 4))
	assert.True(t, ok)
	assert.Equal(t, Sniffed{Kind: common.KindImage, Mime: "image/png", Ext: "png"}, s)

	s, ok = Sniff(jpegBytes(4, 4))
	assert.True(t, ok)
	assert.Equal(t, "jpg", s.Ext)
}

func TestSniffVideo(t *testing.T) {
	s, ok := Sniff([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2\x00\x00\x00\x08free"))
	assert.True(t, ok)
	assert.Equal(t, common.KindVideo, s.Kind)
	assert.Equal(t, "mp4", s.Ext)
}

func TestSniffRejectsUnsupported(t *testing.T) {
	for name, b := range map[string][]byte{
		"gif":   []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
		"pdf":   []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj"),
		"exe":   []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"),
		"text":  []byte("hello world, not an image"),
		"empty": {},
	} {
		_, ok := Sniff(b)
		assert.False(t, ok, name)
	}
}

func TestContainsActiveContent(t *testing.T) {
	assert.True(t, ContainsActiveContent([]byte("\xff\xd8\xff\xe0<SCRIPT>alert(1)</script>")))
	assert.True(t, ContainsActiveContent([]byte("GIF89a<?php system($_GET['c']); ?>")))
	assert.True(t, ContainsActiveContent([]byte("<svg onload=x>")))
	assert.False(t, ContainsActiveContent(pngBytes(8, 8)))

	// only the sniff window is inspected
	late := append(bytes.Repeat([]byte{0}, SniffLength), []byte("<script>")...)
	assert.False(t, ContainsActiveContent(late))
}
