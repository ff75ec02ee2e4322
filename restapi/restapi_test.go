package restapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"td365/httpclient"
)

func TestConnect_FollowsRedirectChainAndExtractsFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finlogin/OneClickDemo.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/Advanced.aspx?ots=WJFUMNFE")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/Advanced.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "WJFUMNFE=TOKEN123")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<html><input id="hfLoginID" value="LOGIN"/><input id="hfAccountID" value="ACC1"/></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, info, err := Connect(context.Background(), srv.URL+"/finlogin/OneClickDemo.aspx?aid=1026", nil)
	require.NoError(t, err)
	assert.Equal(t, "TOKEN123", info.Token)
	assert.Equal(t, "LOGIN", info.LoginID)
	assert.Equal(t, "ACC1", client.accountID)
}

func TestConnect_RedirectChainLengthFiveFailsMaxDepth(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 5; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/hop%d", i), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", fmt.Sprintf("/hop%d", i+1))
			w.WriteHeader(http.StatusFound)
		})
	}
	mux.HandleFunc("/hop5", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`ok`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, _, err := Connect(context.Background(), srv.URL+"/hop0", nil)
	require.Error(t, err)
	var depthErr *MaxRedirectDepthError
	assert.ErrorAs(t, err, &depthErr)
}

func TestConnect_MissingHiddenFieldFailsWithExtractError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<html>no hidden fields here</html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, _, err := Connect(context.Background(), srv.URL+"/start?ots=ABC", nil)
	require.Error(t, err)
	var extractErr *ExtractError
	assert.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "hfLoginID", extractErr.Field)
}

func TestGetMarketSuperGroup_ParsesDEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"d":[{"ID":1,"Name":"Forex","IsSuperGroup":true,"IsWhiteLabelPopularMarket":false,"HasSubscription":true}]}`))
	}))
	defer srv.Close()

	client := newTestRestClient(t, srv)
	groups, err := client.GetMarketSuperGroup(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].ID)
	assert.Equal(t, "Forex", groups[0].Name)
}

func TestGetMarketSuperGroup_MissingDKeyIsExtractError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestRestClient(t, srv)
	_, err := client.GetMarketSuperGroup(context.Background())
	require.Error(t, err)
	var extractErr *ExtractError
	assert.ErrorAs(t, err, &extractErr)
}

func TestGetMarketSuperGroup_NonOKIsHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestRestClient(t, srv)
	_, err := client.GetMarketSuperGroup(context.Background())
	require.Error(t, err)
	var statusErr *HTTPStatusError
	assert.ErrorAs(t, err, &statusErr)
}

func newTestRestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	httpc, err := httpclient.New(srv.URL, t.TempDir())
	require.NoError(t, err)
	return &Client{http: httpc, scheme: u.Scheme, host: u.Host}
}
