package dedup

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/database"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util"
)

type postgresIndex struct {
	db         *database.Database
	staleAfter time.Duration
}

// NewPostgresIndex shares reservations between processes through the
// media_artifacts table. Pending reservations older than staleAfter are
// assumed to belong to a crashed process and are taken over.
func NewPostgresIndex(db *database.Database, staleAfter time.Duration) Index {
	return &postgresIndex{db: db, staleAfter: staleAfter}
}

func (x *postgresIndex) newPoller() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // bounded by the stale takeover instead
	return b
}

func (x *postgresIndex) FindOrReserve(ctx rcontext.RequestContext, candidate *types.MediaArtifact) (*Reservation, error) {
	table := x.db.Artifacts.Prepare(ctx)
	poller := x.newPoller()
	for {
		reserved, err := table.TryReserve(candidate, util.NowMillis())
		if err != nil {
			return nil, err
		}
		if reserved {
			r := clone(candidate)
			r.RefCount = 1
			return &Reservation{Outcome: OutcomeReserved, Artifact: r}, nil
		}

		existing, err := table.GetByHash(candidate.ContentHash)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			// The conflict was on the id, or the other upload abandoned between our queries
			byId, err := table.GetById(candidate.Id)
			if err != nil {
				return nil, err
			}
			if byId != nil {
				return nil, common.ErrIdTaken
			}
			continue
		}

		if existing.State == database.StateReady {
			updated, err := table.IncrementRefCount(existing.Id)
			if err != nil {
				return nil, err
			}
			if updated == nil {
				continue // deleted in the meantime
			}
			return &Reservation{Outcome: OutcomeExisting, Artifact: &updated.MediaArtifact}, nil
		}

		cutoff := util.NowMillis() - x.staleAfter.Milliseconds()
		if existing.ReservedTs < cutoff {
			ctx.Log.WithFields(logrus.Fields{
				"hash":     util.HashPrefix(existing.ContentHash),
				"reserved": util.FromMillis(existing.ReservedTs).String(),
			}).Warn("Taking over stale upload reservation")
			if _, err = table.DeleteStalePending(existing.ContentHash, cutoff); err != nil {
				return nil, err
			}
			continue
		}

		wait := poller.NextBackOff()
		ctx.Log.Debugf("Waiting %s for concurrent upload of the same content", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (x *postgresIndex) Complete(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	ok, err := x.db.Artifacts.Prepare(ctx).Complete(artifact)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no pending reservation for this artifact")
	}
	return nil
}

func (x *postgresIndex) Refresh(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	ok, err := x.db.Artifacts.Prepare(ctx).RefreshPending(artifact.Id, util.NowMillis())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no pending reservation for this artifact")
	}
	return nil
}

func (x *postgresIndex) Abandon(ctx rcontext.RequestContext, artifact *types.MediaArtifact) error {
	return x.db.Artifacts.Prepare(ctx).DeletePending(artifact.Id)
}

func (x *postgresIndex) readyArtifact(ctx rcontext.RequestContext, id string) (*database.DbArtifact, error) {
	a, err := x.db.Artifacts.Prepare(ctx).GetById(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, common.ErrMediaNotFound
	}
	if a.State != database.StateReady {
		return nil, common.ErrMediaNotReady
	}
	return a, nil
}

func (x *postgresIndex) GetById(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error) {
	a, err := x.readyArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	return &a.MediaArtifact, nil
}

func (x *postgresIndex) AddReference(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error) {
	a, err := x.db.Artifacts.Prepare(ctx).IncrementRefCount(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		_, err = x.readyArtifact(ctx, id)
		if err == nil {
			err = common.ErrMediaNotFound
		}
		return nil, err
	}
	return &a.MediaArtifact, nil
}

func (x *postgresIndex) ReleaseReference(ctx rcontext.RequestContext, id string) (int64, error) {
	count, err := x.db.Artifacts.Prepare(ctx).DecrementRefCount(id)
	if err != nil {
		return 0, err
	}
	if count < 0 {
		if _, err = x.readyArtifact(ctx, id); err != nil {
			return 0, err
		}
		return 0, common.ErrMediaNotFound
	}
	return count, nil
}

func (x *postgresIndex) DeleteIfUnreferenced(ctx rcontext.RequestContext, id string) (*types.MediaArtifact, error) {
	a, err := x.db.Artifacts.Prepare(ctx).DeleteIfUnreferenced(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		if _, err = x.readyArtifact(ctx, id); err != nil {
			return nil, err
		}
		return nil, common.ErrStillReferenced
	}
	return &a.MediaArtifact, nil
}
