// Package cache garbage-collects stored images and reports storage health.
//
// Orphan cleanup deletes the files and registry entries of items that no
// longer exist. It runs on a schedule (only when usage is above the soft
// threshold or the analysis found structural issues), on demand, and as an
// emergency measure when a health check finds usage over the cap. Only one
// cleanup runs at a time; a scheduled tick that finds another cleanup running
// is skipped.
package cache
