package filesystem

// Observer records filesystem operation metrics. The implementation lives in
// the metrics package to break the import cycle between the two.
type Observer interface {
	// ObserveOperation records duration and error status for one operation.
	// volume is the label resolved by the VolumeResolver ("storage", "cache").
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveStaleError(retryOp, volume string)
}

// nopObserver is used until SetObserver is called, which keeps tests free of
// metric registration.
type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, float64, error) {}
func (nopObserver) ObserveRetryAttempt(string, string)             {}
func (nopObserver) ObserveRetrySuccess(string, string)             {}
func (nopObserver) ObserveRetryFailure(string, string)             {}
func (nopObserver) ObserveStaleError(string, string)               {}

var defaultObserver Observer = nopObserver{}

// SetObserver sets the package-level metrics observer. Call once at startup.
func SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	defaultObserver = o
}
