package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "propensity")
				So(manager.subsystem, ShouldEqual, "predictor")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When passing empty option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "propensity")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.constLabels, ShouldBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording predictions", func() {
			before := testutil.ToFloat64(globalManager.predictionsTotal.WithLabelValues("lr", "likely"))
			RecordPrediction("lr", "likely")
			RecordPrediction("lr", "likely")
			RecordPredictionLatency("lr", 1.5)
			RecordPredictedProbability("lr", 0.7)

			Convey("Then the counter should advance", func() {
				after := testutil.ToFloat64(globalManager.predictionsTotal.WithLabelValues("lr", "likely"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When updating registry gauges", func() {
			UpdateCachedHandles(2)
			UpdateAvailableModels(3)
			RecordModelLoad("loaded")
			RecordModelLoadLatency(4.0)

			Convey("Then the gauges should hold the latest value", func() {
				So(testutil.ToFloat64(globalManager.cachedHandles), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.availableModels), ShouldEqual, 3)
			})
		})

		Convey("When recording HTTP and error metrics", func() {
			So(func() {
				RecordHTTPRequest("/predict", "POST", "200")
				RecordHTTPRequestDuration("/predict", "POST", "200", 10.0)
				RecordErrorByComponent("registry", "corrupt")
				RecordErrorByType("client_error", "medium")
				RecordErrorByEndpoint("/predict", "POST", "client_error")
				RecordErrorLatency("http", "client_error", 3.0)
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(42)
				RecordSystemGCPauseTime(1.0)
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			RecordPrediction("gather", "unlikely")
			families, err := GetRegistry().Gather()

			Convey("Then the service metrics should be exposed without Go runtime collectors", func() {
				So(err, ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "propensity_predictor_predictions_total")
				So(joined, ShouldNotContainSubstring, "go_goroutines")
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordPrediction("concurrent", "likely")
						UpdateCachedHandles(j)
						RecordPredictionLatency("concurrent", float64(j))
						RecordHTTPRequest("/test", "GET", "200")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then every increment should be counted", func() {
				So(testutil.ToFloat64(globalManager.predictionsTotal.WithLabelValues("concurrent", "likely")), ShouldEqual, 1000)
			})
		})
	})
}
