package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency    = metric.NewHistogram("1m1s")
	CtrlSent           = metric.NewCounter("10s1s")
	CtrlRecv           = metric.NewCounter("10s1s")
	CtrlSendErrors     = metric.NewCounter("1m1s")
	DataForwarded      = metric.NewCounter("10s1s")
	DataDelivered      = metric.NewCounter("10s1s")
	DataDropped        = metric.NewCounter("1m1s")
	MalformedRecv      = metric.NewCounter("1m1s")
	RoutesAged         = metric.NewCounter("1m1s")
	SentBytesPerSecond = metric.NewCounter("10s1s")
	RecvBytesPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dvr:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("dvr:CtrlSent/s", CtrlSent)
	expvar.Publish("dvr:CtrlRecv/s", CtrlRecv)
	expvar.Publish("dvr:CtrlSendErrors", CtrlSendErrors)
	expvar.Publish("dvr:DataForwarded/s", DataForwarded)
	expvar.Publish("dvr:DataDelivered/s", DataDelivered)
	expvar.Publish("dvr:DataDropped", DataDropped)
	expvar.Publish("dvr:MalformedRecv", MalformedRecv)
	expvar.Publish("dvr:RoutesAged", RoutesAged)
	expvar.Publish("dvr:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("dvr:RecvBytes/s", RecvBytesPerSecond)
}
