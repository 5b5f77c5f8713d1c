package metrics

// InitializeMetrics pre-populates the expected label combinations so every
// metric is exported from the first scrape.
func InitializeMetrics() {
	volumes := []string{"storage", "cache", "database", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open", "remove", "write"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}

	for _, status := range []string{"success", "error"} {
		IngestionsTotal.WithLabelValues(status)
	}
	for _, phase := range []string{"original", "thumbnail", "registry", "total"} {
		IngestionDuration.WithLabelValues(phase)
	}

	for _, outcome := range []string{"flagged", "cleared", "removed"} {
		ReconcileItemsTotal.WithLabelValues(outcome)
	}

	for _, pass := range []string{"registry", "legacy_cache", "legacy_items"} {
		MigrationItemsTotal.WithLabelValues(pass, "success")
		MigrationItemsTotal.WithLabelValues(pass, "error")
	}

	for _, trigger := range []string{"scheduled", "emergency", "manual"} {
		for _, outcome := range []string{"performed", "skipped", "error"} {
			CleanupRunsTotal.WithLabelValues(trigger, outcome)
		}
	}

	for _, op := range []string{"kv_get", "kv_set", "kv_delete", "list_items", "get_item",
		"upsert_item", "update_image_state", "remove_item", "active_item_ids"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
