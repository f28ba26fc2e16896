package datastores

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util/ids"
)

const maxAllocateAttempts = 10

var extRegex = regexp.MustCompile(`^[a-z0-9]{1,5}$`)
var labelRegex = regexp.MustCompile(`^[a-z0-9]+$`)

// pathRegex matches every path a StorageKey can produce, and nothing else.
var pathRegex = regexp.MustCompile(`^(image|video)/[0-9]{4}/(0[1-9]|1[0-2])/(originals/[0-9a-f]{32}\.[a-z0-9]{1,5}|thumbnails/[0-9a-f]{32}(-[a-z0-9]+)?\.jpg)$`)

// StorageKey is the location of one artifact's files. Paths are built only
// from the kind, the random id, the format extension and the creation month.
type StorageKey struct {
	Kind      common.Kind
	Id        string
	Ext       string
	CreatedAt time.Time
}

func (k *StorageKey) dir() string {
	ts := k.CreatedAt.UTC()
	return path.Join(string(k.Kind), fmt.Sprintf("%04d", ts.Year()), fmt.Sprintf("%02d", int(ts.Month())))
}

func (k *StorageKey) OriginalPath() string {
	return path.Join(k.dir(), "originals", k.Id+"."+k.Ext)
}

func (k *StorageKey) ThumbnailPath() string {
	return path.Join(k.dir(), "thumbnails", k.Id+".jpg")
}

func (k *StorageKey) DerivativePath(label string) string {
	if label == "thumbnail" {
		return k.ThumbnailPath()
	}
	return path.Join(k.dir(), "thumbnails", k.Id+"-"+label+".jpg")
}

// IsValidPath reports whether p has the shape of a generated storage path.
func IsValidPath(p string) bool {
	return pathRegex.MatchString(p)
}

func newKey(kind common.Kind, ext string, ts time.Time) (*StorageKey, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if !extRegex.MatchString(ext) {
		return nil, fmt.Errorf("invalid extension %q", ext)
	}
	id, err := ids.NewUniqueId()
	if err != nil {
		return nil, err
	}
	return &StorageKey{Kind: kind, Id: id, Ext: ext, CreatedAt: ts.UTC()}, nil
}

type Namer struct {
	store Store
}

func NewNamer(store Store) *Namer {
	return &Namer{store: store}
}

// Allocate creates a fresh key without consulting the store.
func (n *Namer) Allocate(kind common.Kind, ext string, ts time.Time) (*StorageKey, error) {
	return newKey(kind, ext, ts)
}

// AllocateUnique creates a key whose original path is not already in use.
func (n *Namer) AllocateUnique(ctx rcontext.RequestContext, kind common.Kind, ext string, ts time.Time) (*StorageKey, error) {
	for attempts := 0; attempts < maxAllocateAttempts; attempts++ {
		key, err := newKey(kind, ext, ts)
		if err != nil {
			return nil, err
		}
		exists, err := n.store.Exists(ctx, key.OriginalPath())
		if err != nil {
			return nil, err
		}
		if !exists {
			return key, nil
		}
		ctx.Log.Warn("Generated storage path already exists - trying another")
	}
	return nil, errors.New("failed to generate suitable storage path")
}

// KeyFor rebuilds the key of a stored artifact.
func KeyFor(m *types.MediaArtifact) *StorageKey {
	ext := path.Ext(m.StoragePath)
	if len(ext) > 0 {
		ext = ext[1:]
	}
	return &StorageKey{Kind: m.Kind, Id: m.Id, Ext: ext, CreatedAt: m.CreatedAt}
}

func ValidLabel(label string) bool {
	return labelRegex.MatchString(label)
}
