package validation

import (
	"bytes"

	"github.com/gabriel-vasile/mimetype"
	"github.com/h2non/filetype"
	"github.com/t2bot/patient-media-repo/common"
)

// SniffLength is how much of the upload the sniffer looks at.
const SniffLength = 4096

type Sniffed struct {
	Kind common.Kind
	Mime string
	Ext  string // storage extension, no dot
}

type sniffTarget struct {
	kind common.Kind
	ext  string
	mime string
}

var supportedFormats = map[string]sniffTarget{
	"image/jpeg":      {common.KindImage, "jpg", "image/jpeg"},
	"image/png":       {common.KindImage, "png", "image/png"},
	"image/webp":      {common.KindImage, "webp", "image/webp"},
	"video/mp4":       {common.KindVideo, "mp4", "video/mp4"},
	"video/x-m4v":     {common.KindVideo, "mp4", "video/mp4"},
	"video/webm":      {common.KindVideo, "webm", "video/webm"},
	"video/quicktime": {common.KindVideo, "mov", "video/quicktime"},
}

// Sniff identifies the real format of an upload from its first bytes. Only
// the supported image and video formats are recognised.
func Sniff(prefix []byte) (Sniffed, bool) {
	if len(prefix) > SniffLength {
		prefix = prefix[:SniffLength]
	}
	if len(prefix) == 0 {
		return Sniffed{}, false
	}

	kind, err := filetype.Match(prefix)
	if err == nil && kind != filetype.Unknown {
		if t, ok := supportedFormats[kind.MIME.Value]; ok {
			return Sniffed{Kind: t.kind, Mime: t.mime, Ext: t.ext}, true
		}
		return Sniffed{}, false
	}

	// Try the more thorough detector for anything filetype doesn't know
	m := mimetype.Detect(prefix)
	for ; m != nil; m = m.Parent() {
		if t, ok := supportedFormats[m.String()]; ok {
			return Sniffed{Kind: t.kind, Mime: t.mime, Ext: t.ext}, true
		}
	}
	return Sniffed{}, false
}

var activeContentMarkers = [][]byte{
	[]byte("<script"),
	[]byte("<?php"),
	[]byte("<html"),
	[]byte("<iframe"),
	[]byte("<svg"),
	[]byte("javascript:"),
}

// ContainsActiveContent looks for markup or script in the sniff window, which
// would make the file dangerous if a browser ever rendered it.
func ContainsActiveContent(prefix []byte) bool {
	if len(prefix) > SniffLength {
		prefix = prefix[:SniffLength]
	}
	lower := bytes.ToLower(prefix)
	for _, marker := range activeContentMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
