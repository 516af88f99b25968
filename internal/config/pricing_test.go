package config_test

import (
	"testing"

	"github.com/cvforge/cvforge/internal/config"
	"github.com/stretchr/testify/require"
)

func TestTemplateLookupIsCaseInsensitive(t *testing.T) {
	cfg := config.DefaultPricingConfig()

	entry, ok := cfg.Template("  Professional ")
	require.True(t, ok)
	require.Equal(t, int64(3000), entry.Price)
	require.Equal(t, 5, entry.Downloads)

	_, ok = cfg.Template("no-such-template")
	require.False(t, ok)
}

func TestPlanLookup(t *testing.T) {
	cfg := config.DefaultPricingConfig()

	plan, ok := cfg.Plan("interview-pack")
	require.True(t, ok)
	require.Equal(t, int64(15000), plan.Price)
	require.Equal(t, 30, plan.TermDays)
}

func TestFreeLimitSplitsByIdentityKind(t *testing.T) {
	cfg := config.DefaultPricingConfig()

	require.Equal(t, 20, cfg.FreeLimit("question_views", true))
	require.Equal(t, 10, cfg.FreeLimit("question_views", false))
	require.Equal(t, 1, cfg.FreeLimit("interview_sessions", true))
	require.Equal(t, 0, cfg.FreeLimit("unknown_feature", true))
}

func TestStaticHolderServesSnapshot(t *testing.T) {
	holder := config.NewStaticPricingHolder(config.DefaultPricingConfig())
	snapshot := holder.Get()
	require.NotEmpty(t, snapshot.Templates)
	require.NotEmpty(t, snapshot.Plans)
}
