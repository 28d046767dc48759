package syncer

// Notifier receives advisory notifications while a sync pass runs.
// Implementations must not block: a slow observer cannot be allowed to
// stall a pass, so anything that fans out to the network has to buffer
// or drop.
type Notifier interface {
	SyncStarted(full bool)
	SyncPhase(phase, message string)
	SyncProgress(phase string, processed, total int)
	SyncCompleted(files, records int)
	SyncFailed(message string)
	DataRefreshed()
}

// nopNotifier is wired in when no observer is configured.
type nopNotifier struct{}

func (nopNotifier) SyncStarted(bool)              {}
func (nopNotifier) SyncPhase(string, string)      {}
func (nopNotifier) SyncProgress(string, int, int) {}
func (nopNotifier) SyncCompleted(int, int)        {}
func (nopNotifier) SyncFailed(string)             {}
func (nopNotifier) DataRefreshed()                {}
