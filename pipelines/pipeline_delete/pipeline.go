package pipeline_delete

import (
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/dedup"
)

// Execute drops one reference to an artifact. When it was the last one the
// record and every stored file are removed, and true is returned.
func Execute(ctx rcontext.RequestContext, index dedup.Index, store datastores.Store, artifactId string) (bool, error) {
	// Step 1: Release our reference
	remaining, err := index.ReleaseReference(ctx, artifactId)
	if err != nil {
		return false, err
	}
	ctx = ctx.LogWithFields(logrus.Fields{"artifactId": artifactId, "references": remaining})
	if remaining > 0 {
		ctx.Log.Info("Released media reference")
		return false, nil
	}

	// Step 2: Remove the record, unless someone referenced it again meanwhile
	artifact, err := index.DeleteIfUnreferenced(ctx, artifactId)
	if err != nil {
		if errors.Is(err, common.ErrStillReferenced) {
			ctx.Log.Info("Media gained a reference before it could be deleted")
			return false, nil
		}
		return false, err
	}

	// Step 3: Remove the files. The record is already gone, so failures here
	// only leave unreachable files behind.
	for _, p := range artifact.AllPaths() {
		if err = store.Delete(ctx, p); err != nil {
			sentry.CaptureException(err)
			ctx.Log.Warn("Error removing stored file of deleted media: ", err)
		}
	}
	ctx.Log.Info("Deleted unreferenced media")
	return true, nil
}
