package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common/config"
)

var srv *http.Server

func Init(c config.MetricsConfig) {
	if !c.Enabled {
		logrus.Info("Metrics disabled")
		return
	}
	rtr := http.NewServeMux()
	rtr.Handle("/metrics", promhttp.Handler())
	rtr.Handle("/_media/metrics", promhttp.Handler())

	address := c.BindAddress + ":" + strconv.Itoa(c.Port)
	srv = &http.Server{Addr: address, Handler: rtr, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logrus.WithField("address", address).Info("Started metrics listener. Listening at http://" + address)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logrus.Fatal(err)
		}
	}()
}

func Reload(c config.MetricsConfig) {
	Stop()
	Init(c)
}

func Stop() {
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Error("Error stopping metrics listener: ", err)
		}
		srv = nil
	}
}
