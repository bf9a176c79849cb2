package repository

import (
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for repositories
var ProviderSet = wire.NewSet(
	NewDB,
	NewWorkspaceRepository,
	NewStatsRepository,
	NewFileRepository,
	NewCapabilityRepository,
	NewAppendRepository,
	NewIdempotencyRepository,
	NewWebhookRepository,
	NewAuditRepository,
)
