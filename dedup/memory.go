package dedup

import (
	"errors"
	"sync"

	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/types"
)

type memoryEntry struct {
	artifact *types.MediaArtifact
	ready    bool
	done     chan struct{} // closed once completed or abandoned
}

type memoryIndex struct {
	lock   sync.Mutex
	byHash map[string]*memoryEntry
	byId   map[string]*memoryEntry
}

// NewMemoryIndex is an Index for a single process, with no persistence.
func NewMemoryIndex() Index {
	return &memoryIndex{
		byHash: make(map[string]*memoryEntry),
		byId:   make(map[string]*memoryEntry),
	}
}

func (x *memoryIndex) FindOrReserve(ctx rcontext.RequestContext, candidate *types.MediaArtifact) (*Reservation, error) {
	for {
		x.lock.Lock()
		e, ok := x.byHash[candidate.ContentHash]
		if !ok {
			if _, taken := x.byId[candidate.Id]; taken {
				x.lock.Unlock()
				return nil, common.ErrIdTaken
			}
			reserved := clone(candidate)
			reserved.RefCount = 1
			e = &memoryEntry{artifact: reserved, done: make(chan struct{})}
			x.byHash[candidate.ContentHash] = e
			x.byId[candidate.Id] = e
			x.lock.Unlock()
			return &Reservation{Outcome: OutcomeReserved, Artifact: clone(reserved)}, nil
		}
		if e.ready {
			e.artifact.RefCount++
			existing := clone(e.artifact)
			x.lock.Unlock()
			return &Reservation{Outcome: OutcomeExisting, Artifact: existing}, nil
		}
		done := e.done
		x.lock.Unlock()

		ctx.Log.Debug("Waiting for concurrent upload of the same content")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
	}
}

func (x *memoryIndex) pendingEntry(artifact *types.MediaArtifact) (*memoryEntry, error) {
	e, ok := x.byId[artifact.Id]
	if !ok || e.ready || e.artifact.ContentHash != artifact.ContentHash {
		return nil, errors.New("no pending reservation for this artifact")
	}
	return e, nil
}

func (x *memoryIndex) Complete(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	e, err := x.pendingEntry(artifact)
	if err != nil {
		return err
	}
	refs := e.artifact.RefCount
	e.artifact = clone(artifact)
	e.artifact.RefCount = refs
	e.ready = true
	close(e.done)
	return nil
}

// Refresh only checks the reservation is still held: nothing outlives the
// process, so there is nothing to keep alive.
func (x *memoryIndex) Refresh(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	_, err := x.pendingEntry(artifact)
	return err
}

func (x *memoryIndex) Abandon(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	e, err := x.pendingEntry(artifact)
	if err != nil {
		return err
	}
	delete(x.byId, artifact.Id)
	delete(x.byHash, artifact.ContentHash)
	close(e.done)
	return nil
}

func (x *memoryIndex) readyEntry(id string) (*memoryEntry, error) {
	e, ok := x.byId[id]
	if !ok {
		return nil, common.ErrMediaNotFound
	}
	if !e.ready {
		return nil, common.ErrMediaNotReady
	}
	return e, nil
}

func (x *memoryIndex) GetById(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error) {
	x.lock.Lock()
	defer x.lock.Unlock()
	e, err := x.readyEntry(id)
	if err != nil {
		return nil, err
	}
	return clone(e.artifact), nil
}

func (x *memoryIndex) AddReference(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error) {
	x.lock.Lock()
	defer x.lock.Unlock()
	e, err := x.readyEntry(id)
	if err != nil {
		return nil, err
	}
	e.artifact.RefCount++
	return clone(e.artifact), nil
}

func (x *memoryIndex) ReleaseReference(ctx rcontext.RequestContext, id string) (int64, error) {
	x.lock.Lock()
	defer x.lock.Unlock()
	e, err := x.readyEntry(id)
	if err != nil {
		return 0, err
	}
	if e.artifact.RefCount <= 0 {
		return 0, common.ErrMediaNotFound
	}
	e.artifact.RefCount--
	return e.artifact.RefCount, nil
}

func (x *memoryIndex) DeleteIfUnreferenced(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error) {
	x.lock.Lock()
	defer x.lock.Unlock()
	e, err := x.readyEntry(id)
	if err != nil {
		return nil, err
	}
	if e.artifact.RefCount > 0 {
		return nil, common.ErrStillReferenced
	}
	delete(x.byId, id)
	delete(x.byHash, e.artifact.ContentHash)
	return clone(e.artifact), nil
}
