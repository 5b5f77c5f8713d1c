// Package app wires the storage services together. The server and the
// wardrobectl command both open an [App], run [App.Prepare] and then use its
// services directly.
package app
