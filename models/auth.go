package models

import (
	"time"

	"td365/enum"
)

// WebDetail is the result of authentication: enough to drive both the REST
// landing-page walk and the WS dial. Produced once per Connect and
// read-only thereafter.
type WebDetail struct {
	PlatformURL string
	AccountType enum.AccountType
	SiteHost    string
	APIHost     string
	SockHost    string
}

// AuthToken is the OAuth password-grant result, persisted to disk between
// runs and refreshed when now >= ExpiryTime.
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	IDToken     string    `json:"id_token"`
	ExpiryTime  time.Time `json:"-"`
}

// authTokenFile is the on-disk JSON shape: ExpiryTime serializes as
// seconds-since-epoch per spec.md §6's on-disk state format.
type authTokenFile struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiryTime  int64  `json:"expiry_time"`
}

// MarshalJSON renders ExpiryTime as seconds since epoch.
func (t AuthToken) MarshalJSON() ([]byte, error) {
	return jsonMarshal(authTokenFile{
		AccessToken: t.AccessToken,
		IDToken:     t.IDToken,
		ExpiryTime:  t.ExpiryTime.Unix(),
	})
}

// UnmarshalJSON parses ExpiryTime from seconds since epoch.
func (t *AuthToken) UnmarshalJSON(data []byte) error {
	var f authTokenFile
	if err := jsonUnmarshal(data, &f); err != nil {
		return err
	}
	t.AccessToken = f.AccessToken
	t.IDToken = f.IDToken
	t.ExpiryTime = time.Unix(f.ExpiryTime, 0)
	return nil
}

// AuthInfo is returned by REST's Connect and consumed by the WS client's
// authentication frame.
type AuthInfo struct {
	Token   string
	LoginID string
}
