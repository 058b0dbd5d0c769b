package metrics

const (
	// service health
	MetricUp = "polyrun_up"

	// queue
	MetricQueueEnqueued = "polyrun_queue_enqueued_total"
	MetricQueueDropped  = "polyrun_queue_dropped_total"

	// runs by tool and state
	MetricRuns = "polyrun_runs"

	// per host, from the most recent finished run
	MetricHostUp           = "polyrun_host_up"
	MetricHostLastDuration = "polyrun_host_last_run_duration_seconds"
	MetricHostLastRunTs    = "polyrun_host_last_run_timestamp_seconds"
	MetricHostMissing      = "polyrun_host_last_run_missing_outputs"

	MetricRenderDurationSeconds = "polyrun_render_duration_seconds"
)
