package dedup

import (
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/types"
)

type Outcome int

const (
	// OutcomeReserved means the caller won the hash and must Complete or Abandon.
	OutcomeReserved Outcome = iota
	// OutcomeExisting means the content is already stored; a reference was added.
	OutcomeExisting
)

type Reservation struct {
	Outcome  Outcome
	Artifact *types.MediaArtifact
}

// Index maps content hashes to stored artifacts and serialises concurrent
// uploads of the same content. Only one upload per hash ever holds a
// reservation; the others wait for it and then resolve to its artifact.
type Index interface {
	// FindOrReserve returns common.ErrIdTaken if the candidate's id is in use,
	// in which case the caller should allocate a new id and try again.
	FindOrReserve(ctx rcontext.RequestContext, candidate *types.MediaArtifact) (*Reservation, error)
	Complete(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error
	// Refresh marks a pending reservation as still being worked on so it is
	// not mistaken for one left behind by a crashed process.
	Refresh(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error
	Abandon(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error

	GetById(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error)
	AddReference(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error)
	ReleaseReference(ctx rcontext.RequestContext, id string) (int64, error)
	// DeleteIfUnreferenced removes the record of an artifact with no
	// references and returns it so the caller can remove its files.
	DeleteIfUnreferenced(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error)
}

func clone(m *types.MediaArtifact) *types.MediaArtifact {
	c := *m
	if m.Derivatives != nil {
		c.Derivatives = make(map[string]string, len(m.Derivatives))
		for k, v := range m.Derivatives {
			c.Derivatives[k] = v
		}
	}
	return &c
}
