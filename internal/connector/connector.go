package connector

import "context"

// PlatformUpdate describes a platform distribution newer than the queried version.
type PlatformUpdate struct {
	// PlatformVersion is the offered platform version.
	PlatformVersion string `json:"platformVersion"`
	// Size is the distribution size in bytes.
	Size int64 `json:"size"`
	// DistributionUIN resolves to a download URL via PlatformDownloadURL.
	DistributionUIN string `json:"distributionUin"`
}

// ConfigurationUpdate describes the chain of releases leading to a newer configuration version.
type ConfigurationUpdate struct {
	// ConfigurationVersion is the final version of the chain. Empty means nothing to offer.
	ConfigurationVersion string `json:"configurationVersion"`
	// ProgramVersionUIN identifies the program version the chain was computed for.
	ProgramVersionUIN string `json:"programVersionUin"`
	// UpgradeSequence lists chain step identifiers in mandatory order.
	UpgradeSequence []string `json:"upgradeSequence"`
}

// DownloadData locates the archive of one chain step.
type DownloadData struct {
	// TemplatePath is the backslash-separated template path, with the version as a segment.
	TemplatePath string `json:"templatePath"`
	// Size is the archive size in bytes.
	Size int64 `json:"size"`
	// UpdateFileURL is where the archive is downloaded from.
	UpdateFileURL string `json:"updateFileUrl"`
}

// Connector is the remote side of the update flows.
type Connector interface {
	// CheckPlatformUpdate returns the platform update available for currentVersion, or nil.
	CheckPlatformUpdate(ctx context.Context, currentVersion string) (*PlatformUpdate, error)
	// PlatformDownloadURL resolves a distribution identifier to a URL.
	PlatformDownloadURL(ctx context.Context, distributionUIN string) (string, error)
	// CheckConfigurationUpdate returns the update chain for a product, or nil.
	CheckConfigurationUpdate(
		ctx context.Context,
		programName, currentVersion, platformVersion string,
	) (*ConfigurationUpdate, error)
	// ConfigurationDownloadData returns the archive location of a chain step, or nil.
	ConfigurationDownloadData(ctx context.Context, upgradeUIN, programVersionUIN string) (*DownloadData, error)
	// DownloadFile fetches an archive.
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}
