package metrics

import (
	"context"
	"time"

	"contrib.go.opencensus.io/exporter/stackdriver"
	log "github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Names of the tracked metrics. The prefix tells the measure it is
// recorded on: Incr and Count are summed, Latency is a distribution in ms.
const (
	IncrBillingSyncAccountSuccess = "billing_sync_account_success"
	IncrBillingSyncAccountFailure = "billing_sync_account_failure"
	IncrBillingSyncAccountSkipped = "billing_sync_account_skipped"
	IncrBillingSyncRemoteFetch    = "billing_sync_remote_fetch"
	IncrBillingSyncRemoteFailure  = "billing_sync_remote_failure"

	// Records written by the mapper, nested records included.
	CountBillingRecordsCreated = "billing_records_created"
	CountBillingRecordsUpdated = "billing_records_updated"
	CountBillingRecordsDeleted = "billing_records_deleted"

	// Failed accounts over attempted accounts of a sync run.
	CountBillingSyncFailureRatio = "billing_sync_failure_ratio"

	LatencyBillingSyncAccount = "billing_sync_account_latency"
	LatencyBillingSyncJob     = "billing_sync_job_latency"
)

const (
	ViewSyncCount      = "billing_sync_count"
	ViewSyncCountFloat = "billing_sync_count_float"
	ViewSyncLatency    = "billing_sync_latency"

	exportInterval = time.Minute
)

// MetricNameTag Tag holding one of the metric names above. Every view is
// grouped by it.
var MetricNameTag = tag.MustNewKey("metric_name")

var (
	syncCount      = stats.Int64("billing_sync/count", "Counted billing sync events", stats.UnitDimensionless)
	syncCountFloat = stats.Float64("billing_sync/count_float", "Fractional billing sync counts", stats.UnitDimensionless)
	syncLatency    = stats.Float64("billing_sync/latency", "Time taken by billing sync steps", stats.UnitMilliseconds)
)

var syncViews = []*view.View{
	{
		Name:        ViewSyncCount,
		Measure:     syncCount,
		Description: "Sum of billing sync events by metric name",
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{MetricNameTag},
	},
	{
		Name:        ViewSyncCountFloat,
		Measure:     syncCountFloat,
		Description: "Sum of fractional billing sync counts by metric name",
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{MetricNameTag},
	},
	{
		Name:        ViewSyncLatency,
		Measure:     syncLatency,
		Description: "Distribution of billing sync latencies by metric name",
		// Stackdriver ignores the buckets but the exporter fails without them.
		// A single account sync spans several remote calls, so buckets go up to a minute.
		Aggregation: view.Distribution(0, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000),
		TagKeys:     []tag.Key{MetricNameTag},
	},
}

// RegisterViews Registers the views the sync measures are aggregated on.
func RegisterViews() error {
	return view.Register(syncViews...)
}

// jobResource Stackdriver generic_task the sync job reports as.
// https://cloud.google.com/monitoring/api/resources#tag_generic_task
type jobResource struct {
	projectID string
	location  string
	env       string
	appName   string
}

func (r *jobResource) MonitoredResource() (string, map[string]string) {
	return "generic_task", map[string]string{
		"project_id": r.projectID,
		"location":   r.location,
		"namespace":  r.env,
		"job":        r.appName,
		"task_id":    r.appName + "_task",
	}
}

// InitMetrics Starts exporting the registered views to stackdriver. Returns
// nil when metrics are not exported, i.e on development or without a project.
func InitMetrics(env, appName, projectID, projectLocation string) *stackdriver.Exporter {
	if env == "development" || projectID == "" {
		return nil
	}

	logCtx := log.WithFields(log.Fields{"tag": "metrics", "project_id": projectID})
	if err := RegisterViews(); err != nil {
		logCtx.WithError(err).Error("Failed to register metric views.")
		return nil
	}

	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    projectID,
		MetricPrefix: "custom.googleapis.com/" + appName + "/",
		MonitoredResource: &jobResource{
			projectID: projectID,
			location:  projectLocation,
			env:       env,
			appName:   appName,
		},
		ReportingInterval: exportInterval,
		Context:           context.Background(),
		Timeout:           30 * time.Second,
		OnError: func(err error) {
			logCtx.WithError(err).Warn("Failed to export metrics.")
		},
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to create metrics exporter.")
		return nil
	}
	view.SetReportingPeriod(exportInterval)

	if err := exporter.StartMetricsExporter(); err != nil {
		logCtx.WithError(err).Error("Failed to start metrics exporter.")
		return nil
	}

	logCtx.Info("Metrics exporter started.")
	return exporter
}

// Flush Pushes what is pending and stops the exporter. Jobs exit before the
// next export interval, so call it before returning.
func Flush(exporter *stackdriver.Exporter) {
	if exporter == nil {
		return
	}
	exporter.Flush()
	exporter.StopMetricsExporter()
}

func record(metricName string, measurement stats.Measurement) {
	ctx, err := tag.New(context.Background(), tag.Upsert(MetricNameTag, metricName))
	if err != nil {
		log.WithError(err).WithField("metric_name", metricName).Error("Failed to tag metric.")
		return
	}
	stats.Record(ctx, measurement)
}

// Increment Adds one to the metric.
func Increment(metricName string) {
	CountInt(metricName, 1)
}

func CountInt(metricName string, count int64) {
	record(metricName, syncCount.M(count))
}

func CountFloat(metricName string, count float64) {
	record(metricName, syncCountFloat.M(count))
}

// RecordLatency Records latency in milliseconds.
func RecordLatency(metricName string, latencyInMs float64) {
	record(metricName, syncLatency.M(latencyInMs))
}

// RecordLatencySince Usable as defer RecordLatencySince(name, time.Now()).
func RecordLatencySince(metricName string, start time.Time) {
	RecordLatency(metricName, float64(time.Since(start).Milliseconds()))
}
