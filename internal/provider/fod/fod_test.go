package fod

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeFoD serves the token endpoint plus the handful of REST endpoints the
// client touches.
type fakeFoD struct {
	t *testing.T

	applications []map[string]interface{}
	releases     []map[string]interface{}
	vulnPages    [][]map[string]interface{}

	tokenCalls int
	vulnCalls  int
	sawBearer  string
	lastQuery  map[string]string
}

func (f *fakeFoD) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		require.NoError(f.t, r.ParseForm())
		require.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(f.t, "api-tenant", r.PostForm.Get("scope"))
		writeJSON(f.t, w, map[string]interface{}{
			"access_token": "bearer-token-1",
			"token_type":   "bearer",
			"expires_in":   3600,
			"scope":        "api-tenant",
		})
	})
	mux.HandleFunc("/api/v3/applications", func(w http.ResponseWriter, r *http.Request) {
		f.sawBearer = r.Header.Get("Authorization")
		writeItems(f.t, w, f.applications)
	})
	mux.HandleFunc("/api/v3/applications/11/releases", func(w http.ResponseWriter, r *http.Request) {
		writeItems(f.t, w, f.releases)
	})
	mux.HandleFunc("/api/v3/releases/77/vulnerabilities", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f.lastQuery = map[string]string{}
		for k := range q {
			f.lastQuery[k] = q.Get(k)
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		page := f.vulnCalls
		f.vulnCalls++
		require.Equal(f.t, page*limit, offset, "offsets must advance by one page")
		if page >= len(f.vulnPages) {
			writeItems(f.t, w, nil)
			return
		}
		writeItems(f.t, w, f.vulnPages[page])
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func writeItems(t *testing.T, w http.ResponseWriter, items []map[string]interface{}) {
	t.Helper()
	if items == nil {
		items = []map[string]interface{}{}
	}
	writeJSON(t, w, map[string]interface{}{
		"items":      items,
		"totalCount": len(items),
	})
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	req := network.NewRequester(network.NewDefaultClientConfig(), zaptest.NewLogger(t))
	return New(srv.URL, "key-1", "secret-1", req, zaptest.NewLogger(t))
}

func fodVuln(id int, severityString string, locFull, fileName, shortName string, line int) map[string]interface{} {
	return map[string]interface{}{
		"id":                  id,
		"vulnId":              fmt.Sprintf("00000000-0000-0000-0000-%012d", id),
		"category":            "SQL Injection",
		"kingdom":             "Input Validation",
		"severityString":      severityString,
		"priorityOrder":       4.2,
		"likelihood":          0.5,
		"confidence":          3.0,
		"primaryLocationFull": locFull,
		"fileName":            fileName,
		"shortFileName":       shortName,
		"lineNumber":          line,
	}
}

func TestValidateConnectionExchangesToken(t *testing.T) {
	f := &fakeFoD{t: t, applications: []map[string]interface{}{{"applicationId": 1, "applicationName": "A"}}}
	c := newTestClient(t, f.handler())

	res := c.ValidateConnection(context.Background())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, f.tokenCalls)
	assert.Equal(t, "Bearer bearer-token-1", f.sawBearer)
}

func TestValidateConnectionBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"client secret mismatch"}`)
	})
	c := newTestClient(t, mux)

	res := c.ValidateConnection(context.Background())
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "authentication failed")
	assert.Contains(t, res.Error, "client secret mismatch")
}

func TestResolutionRequiresExactMatch(t *testing.T) {
	f := &fakeFoD{
		t: t,
		applications: []map[string]interface{}{
			{"applicationId": 12, "applicationName": "Shop2"},
			{"applicationId": 11, "applicationName": "Shop"},
		},
		releases: []map[string]interface{}{
			{"releaseId": 78, "releaseName": "main-old"},
			{"releaseId": 77, "releaseName": "main"},
		},
	}
	c := newTestClient(t, f.handler())

	res := c.ValidateApplicationAndVersion(context.Background(), "Shop", "main")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "11", res.ApplicationID)
	assert.Equal(t, "77", res.VersionID)
}

func TestResolutionFailureListsCandidates(t *testing.T) {
	f := &fakeFoD{
		t: t,
		applications: []map[string]interface{}{
			{"applicationId": 12, "applicationName": "Shop2"},
		},
	}
	c := newTestClient(t, f.handler())

	res := c.ValidateApplicationAndVersion(context.Background(), "Shop", "main")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, `"Shop" not found`)
	assert.Contains(t, res.Error, "Shop2")
}

func TestFetchReportDataPagination(t *testing.T) {
	f := &fakeFoD{
		t:            t,
		applications: []map[string]interface{}{{"applicationId": 11, "applicationName": "Shop"}},
		releases:     []map[string]interface{}{{"releaseId": 77, "releaseName": "main"}},
		vulnPages: [][]map[string]interface{}{
			{
				fodVuln(1, "Critical", "src/a.java", "", "", 10),
				fodVuln(2, "High", "src/b.java", "", "", 20),
			},
			{
				fodVuln(3, "Low", "src/c.java", "", "", 30),
			},
		},
	}
	c := newTestClient(t, f.handler())
	c.pageSize = 2

	rd, err := c.FetchReportData(context.Background(), "Shop", "main", 100)
	require.NoError(t, err)

	assert.Equal(t, 2, f.vulnCalls)
	require.Len(t, rd.Issues, 3)
	assert.Equal(t, 3, rd.TotalCount)
	assert.Equal(t, "77", rd.ProjectVersionID)

	first := rd.Issues[0]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", first.InstanceID)
	assert.Equal(t, "Critical", first.Severity)
	assert.Equal(t, "d9534f", first.FolderColor)
	assert.Equal(t, "SQL Injection", first.Name)
	assert.Equal(t, "src/a.java:10", first.PrimaryLocation)
	assert.NotEmpty(t, first.RawData)

	assert.Equal(t, "Low", rd.Issues[2].Severity)
	assert.Equal(t, 4, rd.Issues[2].FolderID)

	assert.Equal(t, "severity", f.lastQuery["orderBy"])
	assert.Equal(t, "ASC", f.lastQuery["orderByDirection"])
	assert.Equal(t, "false", f.lastQuery["includeFixed"])
	assert.Equal(t, "false", f.lastQuery["includeSuppressed"])
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	f := &fakeFoD{
		t:            t,
		applications: []map[string]interface{}{{"applicationId": 11, "applicationName": "Shop"}},
		releases:     []map[string]interface{}{{"releaseId": 77, "releaseName": "main"}},
		vulnPages: [][]map[string]interface{}{
			{
				fodVuln(1, "High", "a", "", "", 1),
				fodVuln(2, "High", "b", "", "", 2),
			},
			// Next page is empty.
		},
	}
	c := newTestClient(t, f.handler())
	c.pageSize = 2

	rd, err := c.FetchReportData(context.Background(), "Shop", "main", 100)
	require.NoError(t, err)
	assert.Len(t, rd.Issues, 2)
	assert.Equal(t, 2, f.vulnCalls)
}

func TestFetchPageFailureNamesOffset(t *testing.T) {
	mux := http.NewServeMux()
	f := &fakeFoD{
		t:            t,
		applications: []map[string]interface{}{{"applicationId": 11, "applicationName": "Shop"}},
		releases:     []map[string]interface{}{{"releaseId": 77, "releaseName": "main"}},
	}
	inner := f.handler()
	mux.Handle("/oauth/token", inner)
	mux.Handle("/api/v3/applications", inner)
	mux.Handle("/api/v3/applications/11/releases", inner)
	calls := 0
	mux.HandleFunc("/api/v3/releases/77/vulnerabilities", func(w http.ResponseWriter, r *http.Request) {
		if calls == 0 {
			calls++
			writeItems(t, w, []map[string]interface{}{
				fodVuln(1, "High", "a", "", "", 1),
				fodVuln(2, "High", "b", "", "", 2),
			})
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	c := newTestClient(t, mux)
	c.pageSize = 2

	_, err := c.FetchReportData(context.Background(), "Shop", "main", 100)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindNetwork))
	assert.Contains(t, err.Error(), "offset 2")
}

func TestBuildLocation(t *testing.T) {
	cases := []struct {
		name string
		v    vulnerability
		want string
	}{
		{"full location with line", vulnerability{PrimaryLocationFull: "src/a.java", LineNumber: 10}, "src/a.java:10"},
		{"full location without line", vulnerability{PrimaryLocationFull: "src/a.java"}, "src/a.java"},
		{"falls back to fileName", vulnerability{FileName: "b.java", LineNumber: 5}, "b.java:5"},
		{"falls back to shortFileName", vulnerability{ShortFileName: "c.java"}, "c.java"},
		{"line without file keeps the fragment", vulnerability{LineNumber: 10}, ":10"},
		{"nothing at all", vulnerability{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildLocation(tc.v))
		})
	}
}

func TestDeepLinksUseNumericID(t *testing.T) {
	req := network.NewRequester(network.NewDefaultClientConfig(), zaptest.NewLogger(t))
	c := New("https://ams.fortify.com/", "k", "s", req, zaptest.NewLogger(t))

	assert.Equal(t, "https://ams.fortify.com/Applications/11/Releases/77", c.ProjectURL("11", "77"))
	assert.Equal(t, "https://ams.fortify.com/Applications/11/Releases/77/Issues/123", c.IssueURL("11", "77", "123"))
}
