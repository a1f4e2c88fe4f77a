package status

import "github.com/fossabot/gfw-data-api/internal/pipeline"

// AssetRollup computes an asset status. Precedence is failed, then pending,
// then saved. Failed is terminal: a failed current status never changes.
// An asset without tasks is pending.
func AssetRollup(current string, event pipeline.Status, tasks []pipeline.Status) string {
	if current == Failed || event == pipeline.StatusFailed {
		return Failed
	}
	for _, s := range tasks {
		if s == pipeline.StatusFailed {
			return Failed
		}
	}
	if len(tasks) == 0 {
		return Pending
	}
	for _, s := range tasks {
		if s != pipeline.StatusSuccess {
			return Pending
		}
	}
	return Saved
}

// VersionRollup computes a version status from its default asset.
func VersionRollup(current, defaultAsset string) string {
	if current == Failed || defaultAsset == Failed {
		return Failed
	}
	if defaultAsset == Saved {
		return Saved
	}
	return Pending
}
