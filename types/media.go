package types

import (
	"encoding/json"
	"time"

	"github.com/t2bot/patient-media-repo/common"
)

// MediaArtifact is one stored, content-addressed upload and its derived files.
type MediaArtifact struct {
	Id               string            `json:"id"`
	ContentHash      string            `json:"content_hash"`
	OriginalFilename string            `json:"original_filename"`
	ByteSize         int64             `json:"byte_size"`
	StoredSize       int64             `json:"stored_size"`
	DeclaredMime     string            `json:"declared_mime"`
	ContentType      string            `json:"content_type"`
	Kind             common.Kind       `json:"kind"`
	Width            int               `json:"width,omitempty"`
	Height           int               `json:"height,omitempty"`
	Duration         time.Duration     `json:"-"`
	VideoCodec       string            `json:"video_codec,omitempty"`
	StoragePath      string            `json:"-"`
	ThumbnailPath    string            `json:"-"`
	Derivatives      map[string]string `json:"-"`
	RefCount         int64             `json:"ref_count"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Variant names which stored file of an artifact is being asked for.
type Variant string

const (
	VariantOriginal  Variant = "original"
	VariantThumbnail Variant = "thumbnail"
)

func DerivativeVariant(label string) Variant {
	if label == string(VariantThumbnail) {
		return VariantThumbnail
	}
	return Variant("derivative:" + label)
}

// PathFor returns the storage path of a variant, or "" if it does not exist.
func (m *MediaArtifact) PathFor(v Variant) string {
	switch v {
	case VariantOriginal:
		return m.StoragePath
	case VariantThumbnail:
		return m.ThumbnailPath
	}
	if len(v) > len("derivative:") && string(v[:len("derivative:")]) == "derivative:" {
		return m.Derivatives[string(v[len("derivative:"):])]
	}
	return ""
}

// ContentTypeFor returns the MIME type the variant is served with.
func (m *MediaArtifact) ContentTypeFor(v Variant) string {
	if v == VariantOriginal {
		return m.ContentType
	}
	return "image/jpeg"
}

// AllPaths lists every stored file belonging to the artifact.
func (m *MediaArtifact) AllPaths() []string {
	paths := make([]string, 0, 2+len(m.Derivatives))
	if m.StoragePath != "" {
		paths = append(paths, m.StoragePath)
	}
	if m.ThumbnailPath != "" {
		paths = append(paths, m.ThumbnailPath)
	}
	for _, p := range m.Derivatives {
		paths = append(paths, p)
	}
	return paths
}

// DerivativeLabels returns the labels of all stored derivative images,
// including the thumbnail.
func (m *MediaArtifact) DerivativeLabels() []string {
	labels := make([]string, 0, 1+len(m.Derivatives))
	if m.ThumbnailPath != "" {
		labels = append(labels, string(VariantThumbnail))
	}
	for l := range m.Derivatives {
		labels = append(labels, l)
	}
	return labels
}

func (m *MediaArtifact) MarshalJSON() ([]byte, error) {
	type alias MediaArtifact
	return json.Marshal(&struct {
		*alias
		DurationMs  int64    `json:"duration_ms,omitempty"`
		Derivatives []string `json:"derivatives"`
	}{
		alias:       (*alias)(m),
		DurationMs:  m.Duration.Milliseconds(),
		Derivatives: m.DerivativeLabels(),
	})
}

// SeriesItem is one entry of an ordered photo series.
type SeriesItem struct {
	ArtifactId string `json:"artifact_id"`
	Caption    string `json:"caption"`
}
