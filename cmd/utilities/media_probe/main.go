package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/logging"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/thumbnailing"
	"github.com/t2bot/patient-media-repo/transcoding"
	"github.com/t2bot/patient-media-repo/validation"
)

func main() {
	configPath := flag.String("config", "media-repo.yaml", "The path to the configuration")
	inFile := flag.String("i", "", "The file to check")
	forceMime := flag.String("f", "", "The declared content type. Detected from the file when not supplied.")
	flag.Parse()

	if inFile == nil || *inFile == "" {
		panic("No input file specified")
	}

	// Override config path with config for Docker users
	configEnv := os.Getenv("REPO_CONFIG")
	if configEnv != "" {
		configPath = &configEnv
	}

	c, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	err = logging.Setup(
		c.General.LogDirectory,
		c.General.LogColors,
		c.General.JsonLogs,
		c.General.LogLevel,
	)
	if err != nil {
		panic(err)
	}
	ctx := rcontext.Initial()

	declaredMime := *forceMime
	if declaredMime == "" {
		detected, err := mimetype.DetectFile(*inFile)
		if err != nil {
			panic(err)
		}
		declaredMime = detected.String()
	}

	f, err := os.Open(*inFile)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	images := thumbnailing.NewProcessor(c.Images)
	engine := transcoding.NewFfmpegEngine(c.Videos)
	transcoder := transcoding.NewTranscoder(c.Videos, engine, images, config.DerivativeSize{}, os.TempDir())
	validator := validation.NewValidator(c.Uploads, c.Videos, images, transcoder, os.TempDir())

	upload, err := validator.Validate(ctx, f, filepath.Base(*inFile), declaredMime)
	if err != nil {
		if r, ok := common.AsRejection(err); ok {
			ctx.Log.WithFields(logrus.Fields{
				"reason": r.Reason,
				"code":   common.ErrCodeForRejection(r.Reason),
			}).Error("Rejected: ", r.Detail)
			os.Exit(2)
		}
		panic(err)
	}
	defer upload.Close()

	log := ctx.Log.WithFields(logrus.Fields{
		"kind":     upload.Kind(),
		"mime":     upload.Sniffed.Mime,
		"ext":      upload.Sniffed.Ext,
		"size":     humanize.Bytes(uint64(upload.SizeBytes)),
		"filename": upload.FileName,
	})
	if upload.Probe != nil {
		probe := upload.Probe
		log = log.WithFields(logrus.Fields{
			"duration":  probe.Duration,
			"canonical": transcoder.IsCanonical(probe),
		})
	} else {
		log = log.WithField("dimensions", humanize.Comma(int64(upload.Width))+"x"+humanize.Comma(int64(upload.Height)))
	}
	log.Info("Accepted")
}
