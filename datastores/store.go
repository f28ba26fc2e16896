package datastores

import (
	"context"
	"fmt"
	"io"

	"github.com/t2bot/patient-media-repo/common/config"
)

// Store is where artifact files live. Implementations never overwrite an
// existing path and never expose a partially written object.
type Store interface {
	Put(ctx context.Context, p string, r io.Reader) (int64, error)
	Get(ctx context.Context, p string) (io.ReadSeekCloser, error)
	Delete(ctx context.Context, p string) error
	Exists(ctx context.Context, p string) (bool, error)
	Type() string
}

func NewStore(ds config.DatastoreConfig) (Store, error) {
	switch ds.Type {
	case "file":
		return NewFileStore(ds.Path)
	case "s3":
		return NewS3Store(ds)
	}
	return nil, fmt.Errorf("unknown datastore type %q", ds.Type)
}
