package authenticator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"td365/enum"
	"td365/httpclient"
	"td365/models"
)

const (
	oauthTokenHost = "td365.eu.auth0.com"
	portalSiteHost = "portal-api.tradenation.com"
	auth0ClientID  = "eeXrVwSMXPZ4pJpwStuNyiUa7XxGZRX9"
	demoURL        = "https://demo.tradedirect365.com/finlogin/OneClickDemo.aspx?aid=1026"
	demoSiteHost   = "https://demo.tradedirect365.com.au"
	demoAPIHost    = "https://demo-api.finsa.com.au"
	demoSockHost   = "https://demo-api.finsa.com.au"
	prodSiteHost   = "https://traders.td365.com"
	prodAPIHost    = "https://prod-api.finsa.com.au"
	prodSockHost   = "https://prod-api.finsa.com.au"
	authTokenFile  = "auth_token.json"
)

// AuthError reports a failure in either authentication variant: a bad
// login, a missing account, or an unexpected portal response.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authenticator: %s: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Anonymous returns the fixed demo web_detail used by the oneclick flow.
// The "?aid=1026" query parameter is required by the venue for a valid
// login and must not be stripped.
func Anonymous() models.WebDetail {
	return models.WebDetail{
		PlatformURL: demoURL,
		AccountType: enum.AccountTypeOneClick,
		SiteHost:    demoSiteHost,
		APIHost:     demoAPIHost,
		SockHost:    demoSockHost,
	}
}

// Authenticate performs the Auth0 password-grant flow: load or refresh the
// cached token, select the named account from the portal, and resolve that
// account's platform URL into a web_detail.
func Authenticate(ctx context.Context, username, password, accountID string, log *logrus.Logger) (models.WebDetail, error) {
	token, err := loadAuthToken(authTokenFile)
	if err != nil {
		return models.WebDetail{}, &AuthError{Op: "load auth_token.json", Err: err}
	}

	if time.Now().After(token.ExpiryTime) {
		token, err = login(ctx, username, password)
		if err != nil {
			return models.WebDetail{}, &AuthError{Op: "login", Err: err}
		}
		if err := saveAuthToken(authTokenFile, token); err != nil {
			return models.WebDetail{}, &AuthError{Op: "save auth_token.json", Err: err}
		}
	}

	logTokenClaims(log, token.IDToken)

	portal, err := httpclient.New(portalSiteHost, "")
	if err != nil {
		return models.WebDetail{}, &AuthError{Op: "open portal client", Err: err}
	}
	portal.SetDefaultHeader("Authorization", "Bearer "+token.AccessToken)

	account, err := selectAccount(ctx, portal, accountID)
	if err != nil {
		return models.WebDetail{}, &AuthError{Op: "select account", Err: err}
	}

	accountType := enum.AccountTypeProd
	if account.AccountType == "DEMO" {
		accountType = enum.AccountTypeDemo
	}

	platformURL, err := fetchPlatformURL(ctx, portal, account.Button.LinkTo)
	if err != nil {
		return models.WebDetail{}, &AuthError{Op: "fetch platform url", Err: err}
	}

	detail := models.WebDetail{PlatformURL: platformURL, AccountType: accountType}
	if accountType == enum.AccountTypeDemo {
		detail.SiteHost, detail.APIHost, detail.SockHost = demoSiteHost, demoAPIHost, demoSockHost
	} else {
		detail.SiteHost, detail.APIHost, detail.SockHost = prodSiteHost, prodAPIHost, prodSockHost
	}
	return detail, nil
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func login(ctx context.Context, username, password string) (models.AuthToken, error) {
	cli, err := httpclient.New(oauthTokenHost, "")
	if err != nil {
		return models.AuthToken{}, err
	}

	body, err := json.Marshal(map[string]string{
		"realm":      "Username-Password-Authentication",
		"client_id":  auth0ClientID,
		"scope":      "openid",
		"grant_type": "http://auth0.com/oauth/grant-type/password-realm",
		"username":   username,
		"password":   password,
	})
	if err != nil {
		return models.AuthToken{}, err
	}

	resp, err := cli.Do(ctx, http.MethodPost, "/oauth/token", http.Header{"Content-Type": {"application/json"}}, string(body))
	if err != nil {
		return models.AuthToken{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.AuthToken{}, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return models.AuthToken{}, err
	}

	return models.AuthToken{
		AccessToken: lr.AccessToken,
		IDToken:     lr.IDToken,
		ExpiryTime:  time.Now().Add(time.Duration(lr.ExpiresIn) * time.Second),
	}, nil
}

type portalAccount struct {
	Account     string `json:"account"`
	AccountType string `json:"accountType"`
	Button      struct {
		LinkTo string `json:"linkTo"`
	} `json:"button"`
}

type portalAccountsResponse struct {
	Results []portalAccount `json:"results"`
}

func selectAccount(ctx context.Context, client *httpclient.Client, accountID string) (portalAccount, error) {
	resp, err := client.Do(ctx, http.MethodGet, "/TD365/user/accounts/", nil, "")
	if err != nil {
		return portalAccount{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return portalAccount{}, fmt.Errorf("select_account failed with status %d", resp.StatusCode)
	}

	var parsed portalAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return portalAccount{}, err
	}
	for _, a := range parsed.Results {
		if a.Account == accountID {
			return a, nil
		}
	}
	return portalAccount{}, fmt.Errorf("account not found: %s", accountID)
}

type launchURLResponse struct {
	URL string `json:"url"`
}

func fetchPlatformURL(ctx context.Context, client *httpclient.Client, target string) (string, error) {
	resp, err := client.Do(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s - bad status: %d", target, resp.StatusCode)
	}

	var lr launchURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	return lr.URL, nil
}

func loadAuthToken(path string) (models.AuthToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.AuthToken{}, nil
		}
		return models.AuthToken{}, err
	}
	var token models.AuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		return models.AuthToken{}, err
	}
	return token, nil
}

func saveAuthToken(path string, token models.AuthToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// logTokenClaims introspects id_token's exp/sub claims for diagnostics.
// The venue, not this client, is the JWT's relying party: the signature is
// never verified here.
func logTokenClaims(log *logrus.Logger, idToken string) {
	if idToken == "" || log == nil {
		return
	}
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(idToken, claims)
	if err != nil {
		log.WithError(err).Debug("could not introspect id_token claims")
		return
	}
	log.WithFields(logrus.Fields{
		"exp": claims["exp"],
		"sub": claims["sub"],
	}).Debug("id_token claims")
}
