package context

import (
	"crypto/rand"
	"io"

	"votingcore/pkg/config"
	"votingcore/pkg/metrics"
	"votingcore/pkg/storage"
)

// CoreContext holds request-scoped data threaded through every core
// operation: the storage handle, a CSPRNG source, configuration, and the
// metrics recorder for the current run. Storage, Config and Recorder are
// passed down from the caller. Rand is carried but not read by the core:
// pkg/shamir, pkg/hybridcrypto and pkg/model draw from crypto/rand
// directly, and logging goes through the package-level pkg/log.
type CoreContext struct {
	Storage  storage.Store
	Rand     io.Reader
	Config   *config.Config
	Recorder *metrics.Recorder
}

// NewContext creates a new CoreContext whose Rand is crypto/rand.Reader.
func NewContext(store storage.Store, cfg *config.Config, rec *metrics.Recorder) *CoreContext {
	return &CoreContext{
		Storage:  store,
		Rand:     rand.Reader,
		Config:   cfg,
		Recorder: rec,
	}
}
