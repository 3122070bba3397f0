package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then the telemetry namespace is used", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "nocaptcha")
				So(manager.subsystem, ShouldEqual, "telemetry")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(time.Duration(manager.refreshInterval.Load()), ShouldEqual, 10*time.Second)
				So(manager.enabled.Load(), ShouldBeTrue)
			})

			Convey("Then metric names carry the prefix and constant labels", func() {
				manager.captureEvents.WithLabelValues("mouse").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_capture_events_total" {
						found = true
						So(f.GetMetric()[0].GetLabel(), ShouldHaveLength, 2)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "nocaptcha")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(time.Duration(manager.refreshInterval.Load()), ShouldEqual, defaultRefreshInterval)
				So(manager.enabled.Load(), ShouldBeTrue)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Reset(func() {
			Configure(WithMetricsEnabled(true), WithRefreshInterval(defaultRefreshInterval))
		})

		Convey("When metrics are disabled", func() {
			before := testutil.ToFloat64(globalManager.payloadsReceived)
			Configure(WithMetricsEnabled(false))
			RecordPayloadReceived()

			Convey("Then the helpers record nothing", func() {
				So(Enabled(), ShouldBeFalse)
				So(testutil.ToFloat64(globalManager.payloadsReceived), ShouldEqual, before)
			})

			Convey("Then re-enabling resumes recording", func() {
				Configure(WithMetricsEnabled(true))
				RecordPayloadReceived()
				So(testutil.ToFloat64(globalManager.payloadsReceived)-before, ShouldEqual, 1)
			})
		})

		Convey("When the refresh interval is changed", func() {
			Configure(WithRefreshInterval(2 * time.Second))

			Convey("Then it is reported", func() {
				So(RefreshInterval(), ShouldEqual, 2*time.Second)
			})
		})
	})
}

func TestCaptureMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When capture events are recorded", func() {
			before := testutil.ToFloat64(globalManager.captureEvents.WithLabelValues("touch"))
			RecordCaptureEvent("touch")
			RecordCaptureEvent("touch")

			Convey("Then the modality counter advances", func() {
				after := testutil.ToFloat64(globalManager.captureEvents.WithLabelValues("touch"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When evictions are recorded", func() {
			before := testutil.ToFloat64(globalManager.captureEvicted.WithLabelValues("mouse"))
			RecordCaptureEvicted("mouse", 5)

			Convey("Then the eviction counter adds the batch", func() {
				after := testutil.ToFloat64(globalManager.captureEvicted.WithLabelValues("mouse"))
				So(after-before, ShouldEqual, 5)
			})
		})

		Convey("When sessions mount and close", func() {
			before := testutil.ToFloat64(globalManager.activeSessions)
			IncActiveSessions()
			IncActiveSessions()
			DecActiveSessions()

			Convey("Then the gauge tracks the difference", func() {
				So(testutil.ToFloat64(globalManager.activeSessions)-before, ShouldEqual, 1)
				DecActiveSessions()
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording pipeline metrics", func() {
			So(func() {
				UpdateWSConnections(1)
				UpdateWSConnections(-1)
				RecordExtractionLatency(0.4)
				RecordUndefinedFeature("mouse.microMovements")
				RecordLookupFailure("ip")
				RecordLookupLatency("geo", 120)
				RecordTransportSubmission("sent")
				RecordTransportSubmission("failed")
				RecordTransportLatency(35)
			}, ShouldNotPanic)
		})

		Convey("When recording collector metrics", func() {
			So(func() {
				RecordPayloadReceived()
				RecordPayloadDuplicate()
				RecordPayloadStored()
				UpdateRepositoryRecordsTotal(10)
				RecordRepositoryUpdateLatency(1.5)
				RecordRepositoryQueryLatency(0.5)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/submit-data/", "POST", "202")
				RecordHTTPRequestDuration("/submit-data/", "POST", "202", 3.0)
				RecordHTTPRequest("/healthz", "GET", "200")
			}, ShouldNotPanic)
		})

		Convey("When recording queue and worker metrics", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(2)
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(2)
				UpdateWorkerIdleCount(2)
				UpdateWorkerMessagesPerSecond(12.5)
				RecordWorkerProcessingLatency(1)
				RecordWorkerError()
			}, ShouldNotPanic)
		})

		Convey("When recording error and system metrics", func() {
			So(func() {
				RecordErrorByComponent("transport", "timeout")
				RecordErrorByType("timeout", "warning")
				RecordErrorByEndpoint("/submit-data/", "POST", "validation_error")
				RecordErrorLatency("repository", "write_failed", 12)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry gathers without error", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
