package pipeline_series

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/dedup"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util/ids"
)

const MaxItems = 100
const MaxCaptionLength = 1000 // characters

func invalid(i int, reason string) error {
	return fmt.Errorf("%w: item %d %s", common.ErrSeriesInvalid, i, reason)
}

// Validate checks that every item of a photo series names a stored image and
// returns the items with normalized captions. Order is preserved.
func Validate(ctx rcontext.RequestContext, index dedup.Index, items []types.SeriesItem) ([]types.SeriesItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: series is empty", common.ErrSeriesInvalid)
	}
	if len(items) > MaxItems {
		return nil, fmt.Errorf("%w: more than %d items", common.ErrSeriesInvalid, MaxItems)
	}

	normalized := make([]types.SeriesItem, len(items))
	for i, item := range items {
		if !ids.IsValidId(item.ArtifactId) {
			return nil, invalid(i, "has a malformed id")
		}
		artifact, err := index.GetById(ctx, item.ArtifactId)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrMediaNotFound):
				return nil, invalid(i, "does not exist")
			case errors.Is(err, common.ErrMediaNotReady):
				return nil, invalid(i, "is still being processed")
			}
			return nil, err
		}
		if artifact.Kind != common.KindImage {
			return nil, invalid(i, "is not an image")
		}

		caption := strings.TrimSpace(item.Caption)
		if utf8.RuneCountInString(caption) > MaxCaptionLength {
			caption = strings.TrimSpace(string([]rune(caption)[:MaxCaptionLength]))
		}
		normalized[i] = types.SeriesItem{ArtifactId: item.ArtifactId, Caption: caption}
	}
	return normalized, nil
}
