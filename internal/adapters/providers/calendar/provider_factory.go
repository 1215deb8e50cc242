package calendar

import (
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	"google.golang.org/api/option"
)

// ProviderConfig configures the calendar provider.
type ProviderConfig struct {
	OAuthConfigured bool
	CalendarID      string
	ClientOptions   []option.ClientOption
}

// NewCalendarProvider returns the Google provider when user OAuth is
// configured, the mock provider otherwise.
func NewCalendarProvider(cfg ProviderConfig) providers.CalendarProvider {
	if !cfg.OAuthConfigured {
		// No OAuth client; meetings get mock links in dev.
		log.Warn().Msg("Calendar OAuth client not configured, using mock calendar provider")
		return NewMockAdapter()
	}
	return NewGoogleCalendarAdapter(cfg.CalendarID, cfg.ClientOptions...)
}
