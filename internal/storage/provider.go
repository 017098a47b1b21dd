package storage

import "gifpipe/internal/ports"

// Provider is the storage contract used across API, worker and sweeper.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
