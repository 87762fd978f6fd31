package storage

import "time"

// Well-known keys, relative to the manager prefix.
const (
	KeyToken        = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
	KeyPermissions  = "permissions"
	KeyWorkspace    = "workspace"
	KeyVenue        = "venue"
	KeyTheme        = "theme"
	KeySettings     = "settings"

	// KeyTokenExpiry was written by older builds next to the token.
	KeyTokenExpiry = "token_expiry"

	menuKeyPrefix = "menu_cache_"
)

// Staleness tolerances for the convenience accessors.
const (
	UserTTL        = 30 * time.Minute
	PermissionsTTL = 15 * time.Minute
	WorkspaceTTL   = 20 * time.Minute
	VenueTTL       = 20 * time.Minute
	MenuTTL        = 10 * time.Minute
	ThemeTTL       = 7 * 24 * time.Hour
	SettingsTTL    = 24 * time.Hour
)

// SetToken stores the access token. Tokens never expire through the
// envelope ttl; their lifetime is owned by the auth server.
func (m *Manager) SetToken(token string) bool { return m.SetItem(KeyToken, token, 0) }

// Token returns the stored access token.
func (m *Manager) Token() (string, bool) {
	var t string
	ok := m.GetItem(KeyToken, &t)
	return t, ok
}

func (m *Manager) SetRefreshToken(token string) bool {
	return m.SetItem(KeyRefreshToken, token, 0)
}

func (m *Manager) RefreshToken() (string, bool) {
	var t string
	ok := m.GetItem(KeyRefreshToken, &t)
	return t, ok
}

// SetUser stores the signed-in user's profile.
func (m *Manager) SetUser(user any) bool { return m.SetItem(KeyUser, user, UserTTL) }

// User decodes the stored profile into out.
func (m *Manager) User(out any) bool { return m.GetItem(KeyUser, out) }

func (m *Manager) SetPermissions(perms any) bool {
	return m.SetItem(KeyPermissions, perms, PermissionsTTL)
}

func (m *Manager) Permissions(out any) bool { return m.GetItem(KeyPermissions, out) }

func (m *Manager) SetWorkspace(ws any) bool { return m.SetItem(KeyWorkspace, ws, WorkspaceTTL) }

func (m *Manager) Workspace(out any) bool { return m.GetItem(KeyWorkspace, out) }

func (m *Manager) SetVenue(venue any) bool { return m.SetItem(KeyVenue, venue, VenueTTL) }

func (m *Manager) Venue(out any) bool { return m.GetItem(KeyVenue, out) }

// SetMenu caches the menu of one venue. Menu keys are in the cache
// category and are the first to go under storage pressure.
func (m *Manager) SetMenu(venueID string, menu any) bool {
	return m.SetItem(menuKeyPrefix+venueID, menu, MenuTTL)
}

func (m *Manager) Menu(venueID string, out any) bool {
	return m.GetItem(menuKeyPrefix+venueID, out)
}

func (m *Manager) SetTheme(theme any) bool { return m.SetItem(KeyTheme, theme, ThemeTTL) }

func (m *Manager) Theme(out any) bool { return m.GetItem(KeyTheme, out) }

func (m *Manager) SetSettings(settings any) bool {
	return m.SetItem(KeySettings, settings, SettingsTTL)
}

func (m *Manager) Settings(out any) bool { return m.GetItem(KeySettings, out) }

// ClearAuthData removes every piece of session state in one call. It is the
// only storage operation a logout needs.
func (m *Manager) ClearAuthData() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range []string{
		KeyToken,
		KeyRefreshToken,
		KeyUser,
		KeyPermissions,
		KeyWorkspace,
		KeyVenue,
		KeyTokenExpiry,
	} {
		m.removeLocked(m.full(k))
	}
	// Builds that predate namespacing wrote the expiry without a prefix.
	m.removeLocked(KeyTokenExpiry)
}
