package google

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/healthcare/v1"
	"google.golang.org/api/option"
)

// ServiceCredentials is the service's own identity towards Google Cloud.
// The token source caches its token and refreshes it shortly before expiry,
// so a single instance is shared by every FHIR store call.
type ServiceCredentials struct {
	ProjectID   string
	TokenSource oauth2.TokenSource
}

// NewServiceCredentials resolves application default credentials once at startup
func NewServiceCredentials(ctx context.Context) (*ServiceCredentials, error) {
	creds, err := googleoauth.FindDefaultCredentials(ctx, healthcare.CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to find google default credentials: %w", err)
	}

	log.Info().Str("project_id", creds.ProjectID).Msg("Google service credentials resolved")

	return &ServiceCredentials{
		ProjectID:   creds.ProjectID,
		TokenSource: oauth2.ReuseTokenSource(nil, creds.TokenSource),
	}, nil
}

// ClientOptions returns API client options authenticating with these credentials
func (c *ServiceCredentials) ClientOptions() []option.ClientOption {
	return []option.ClientOption{option.WithTokenSource(c.TokenSource)}
}

// NewCalendarOAuthConfig builds the user-facing OAuth client used to create
// calendar events on behalf of the signed-in clinician.
func NewCalendarOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     googleoauth.Endpoint,
	}
}
