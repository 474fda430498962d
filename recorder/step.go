package recorder

// Step returns the global step of a batch: epoch*batchesPerEpoch + batch.
// Inputs are not checked. Steps only increase when the caller walks batch
// from 0 to batchesPerEpoch-1 within each epoch.
func Step(epoch, batch, batchesPerEpoch int) int {
	return epoch*batchesPerEpoch + batch
}
