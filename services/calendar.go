package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/avelkar/aria/backend/models"
	"github.com/avelkar/aria/backend/repository"
)

// refreshWindow is how close to expiry a cached access token may get before
// the gate exchanges the refresh token. The boundary is inclusive on the
// must-refresh side: a token expiring in exactly two minutes is refreshed.
const refreshWindow = 2 * time.Minute

// CalendarTokenGate ensures a valid calendar access token exists immediately
// before any calendar API call. On refresh failure it returns zero values and
// the caller proceeds with the stale token, producing a downstream 401 that
// surfaces as a generic internal error. No retry, no backoff, no
// refresh-token rotation handling.
type CalendarTokenGate struct {
	conf *oauth2.Config
	now  func() time.Time
}

func NewCalendarTokenGate(clientID, clientSecret string) *CalendarTokenGate {
	return &CalendarTokenGate{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarReadonlyScope},
		},
		now: time.Now,
	}
}

// AuthURL builds the provider consent URL the frontend redirects the user to.
// offline access is required so the exchange returns a refresh token.
func (g *CalendarTokenGate) AuthURL(redirectURI, state string) string {
	conf := *g.conf
	conf.RedirectURL = redirectURI
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token pair and verifies the
// bundled identity token against the provider's published signing keys.
func (g *CalendarTokenGate) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	conf := *g.conf
	conf.RedirectURL = redirectURI
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
		if _, err := idtoken.Validate(ctx, raw, g.conf.ClientID); err != nil {
			return nil, fmt.Errorf("identity token validation failed: %w", err)
		}
	}
	return token, nil
}

// EnsureFresh returns a usable access token and its expiry. When the cached
// token is still comfortably valid it is returned unchanged; otherwise the
// refresh token is exchanged synchronously and the new pair returned with
// refreshed=true (the caller persists it).
func (g *CalendarTokenGate) EnsureFresh(ctx context.Context, token *models.CalendarToken) (string, time.Time, bool, error) {
	if !token.IsSet() {
		return "", time.Time{}, false, fmt.Errorf("calendar account not connected")
	}

	if token.ExpiresAt.Sub(g.now().UTC()) > refreshWindow {
		return token.AccessToken, token.ExpiresAt, false, nil
	}

	// Force the exchange by handing oauth2 an already-expired token.
	src := g.conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: token.RefreshToken,
		Expiry:       g.now().Add(-time.Minute),
	})
	fresh, err := src.Token()
	if err != nil {
		slog.Error("Calendar token refresh failed", "error", err, "user_id", token.UserID)
		return "", time.Time{}, false, err
	}

	slog.Info("Calendar token refreshed", "user_id", token.UserID, "expires_at", fresh.Expiry)
	return fresh.AccessToken, fresh.Expiry, true, nil
}

// CalendarService proxies the external calendar API for the logged-in user.
type CalendarService struct {
	repo *repository.GORMRepository
	gate *CalendarTokenGate
}

func NewCalendarService(repo *repository.GORMRepository, gate *CalendarTokenGate) *CalendarService {
	return &CalendarService{repo: repo, gate: gate}
}

// CalendarEvent is the trimmed event shape relayed to the client.
type CalendarEvent struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Location string `json:"location,omitempty"`
	Start    string `json:"start"`
	End      string `json:"end"`
	HTMLLink string `json:"html_link,omitempty"`
}

// Connect completes the calendar account link: exchange the authorization
// code, then overwrite the user's stored token pair.
func (s *CalendarService) Connect(ctx context.Context, userID, code, redirectURI string) error {
	token, err := s.gate.Exchange(ctx, code, redirectURI)
	if err != nil {
		return err
	}

	refresh := token.RefreshToken
	if refresh == "" {
		// Re-consent without a new refresh token keeps the stored one.
		if existing, err := s.repo.GetCalendarToken(ctx, userID); err == nil && existing != nil {
			refresh = existing.RefreshToken
		}
	}

	if err := s.repo.ReplaceCalendarToken(ctx, userID, token.AccessToken, refresh, token.Expiry); err != nil {
		return fmt.Errorf("failed to store calendar token: %w", err)
	}

	slog.Info("Calendar account connected", "user_id", userID, "expires_at", token.Expiry)
	return nil
}

// ConnectURL returns the provider consent URL for the frontend redirect.
func (s *CalendarService) ConnectURL(redirectURI, state string) string {
	return s.gate.AuthURL(redirectURI, state)
}

// UpcomingEvents lists the user's next events. The refresh gate runs first;
// when it fails the stale access token is used anyway and the upstream 401
// propagates as an error.
func (s *CalendarService) UpcomingEvents(ctx context.Context, userID string, maxResults int64) ([]CalendarEvent, error) {
	token, err := s.repo.GetCalendarToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if token == nil || !token.IsSet() {
		return nil, fmt.Errorf("calendar account not connected")
	}

	access, expiry, refreshed, err := s.gate.EnsureFresh(ctx, token)
	if err != nil {
		// Proceed with the stale token; the calendar API rejects it downstream.
		access = token.AccessToken
	} else if refreshed {
		if err := s.repo.ReplaceCalendarToken(ctx, userID, access, token.RefreshToken, expiry); err != nil {
			slog.Error("Failed to persist refreshed calendar token", "error", err, "user_id", userID)
		}
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access}),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar client: %w", err)
	}

	if maxResults <= 0 {
		maxResults = 10
	}
	result, err := svc.Events.List("primary").
		TimeMin(time.Now().UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar API call failed: %w", err)
	}

	events := make([]CalendarEvent, 0, len(result.Items))
	for _, item := range result.Items {
		ev := CalendarEvent{
			ID:       item.Id,
			Summary:  item.Summary,
			Location: item.Location,
			HTMLLink: item.HtmlLink,
		}
		if item.Start != nil {
			ev.Start = item.Start.DateTime
			if ev.Start == "" {
				ev.Start = item.Start.Date
			}
		}
		if item.End != nil {
			ev.End = item.End.DateTime
			if ev.End == "" {
				ev.End = item.End.Date
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
