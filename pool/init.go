package pool

import (
	"github.com/t2bot/patient-media-repo/common/config"
)

// Pools keeps ingestion and transcoding apart so slow video conversions
// cannot starve image uploads.
type Pools struct {
	Ingest    *Queue
	Transcode *Queue
}

func NewPools(c config.WorkersConfig) (*Pools, error) {
	ingest, err := NewQueue(c.Ingest, "ingest")
	if err != nil {
		return nil, err
	}
	transcode, err := NewQueue(c.Transcode, "transcode")
	if err != nil {
		ingest.Release()
		return nil, err
	}
	return &Pools{Ingest: ingest, Transcode: transcode}, nil
}

func (p *Pools) AdjustSize(c config.WorkersConfig) {
	p.Ingest.Tune(c.Ingest)
	p.Transcode.Tune(c.Transcode)
}

func (p *Pools) Drain() {
	p.Ingest.Release()
	p.Transcode.Release()
}
