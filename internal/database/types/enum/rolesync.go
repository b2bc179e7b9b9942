package enum

// RoleKind identifies which GitHub relationship a guild role represents.
//
//go:generate go tool enumer -type=RoleKind -trimprefix=RoleKind
type RoleKind int

const (
	// RoleKindContributor is granted to contributors of a followed repository.
	RoleKindContributor RoleKind = iota
	// RoleKindStargazer is granted to stargazers of a followed repository.
	RoleKindStargazer
)

// SyncStatus is the lifecycle state of a guild sync attempt.
//
//go:generate go tool enumer -type=SyncStatus -trimprefix=SyncStatus
type SyncStatus int

const (
	// SyncStatusStarted means the history record exists but no work has happened yet.
	SyncStatusStarted SyncStatus = iota
	// SyncStatusFetchingData means repository membership is being resolved.
	SyncStatusFetchingData
	// SyncStatusProcessingUsers means members are being compared and mutated.
	SyncStatusProcessingUsers
	// SyncStatusCompleted means the attempt finished.
	SyncStatusCompleted
	// SyncStatusFailed means the attempt stopped on a guild-level error.
	SyncStatusFailed
)
