package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/pathways/internal/learningcontext"
	"github.com/petrijr/pathways/internal/service"
	"github.com/petrijr/pathways/pkg/api"
)

var (
	author = api.Principal{UserID: 10, Username: "lx-test-user", Groups: []string{"authors"}}
	staff  = api.Principal{UserID: 1, Username: "lx-admin", IsStaff: true}
	other  = api.Principal{UserID: 20, Username: "random-user"}
)

const (
	problemBlock = "lb:TestOrg:lib1:problem:p1"
	htmlBlock    = "lb:TestOrg:lib2:html:h2"
)

type HTTPAPISuite struct {
	suite.Suite

	studio *httptest.Server
	lms    *httptest.Server
	auth   *Authenticator
}

func TestHTTPAPISuite(t *testing.T) {
	suite.Run(t, new(HTTPAPISuite))
}

func (s *HTTPAPISuite) SetupTest() {
	auth, err := NewAuthenticator([]byte("test-secret"), "pathways-test")
	s.Require().NoError(err)
	s.auth = auth

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := service.InMemoryPersistence()
	svc := service.New(service.Config{
		Persistence:         p,
		Directory:           service.NewStaticDirectory([]int64{1, 10, 20}, []string{"authors", "editors"}),
		AuthorizedUsernames: []string{author.Username, staff.Username},
		Logger:              logger,
	})

	studioSrv, err := New(Config{
		Service:  svc,
		Registry: learningcontext.NewRegistryWithPathways(p.Pathways, true),
		Auth:     auth,
		Logger:   logger,
	})
	s.Require().NoError(err)
	lmsSrv, err := New(Config{
		Service:  svc,
		Registry: learningcontext.NewRegistryWithPathways(p.Pathways, false),
		Auth:     auth,
		Logger:   logger,
	})
	s.Require().NoError(err)

	s.studio = httptest.NewServer(studioSrv.Handler(studioSrv.StudioRouter(), "studio"))
	s.lms = httptest.NewServer(lmsSrv.Handler(lmsSrv.LMSRouter(), "lms"))
}

func (s *HTTPAPISuite) TearDownTest() {
	s.studio.Close()
	s.lms.Close()
}

func (s *HTTPAPISuite) token(p api.Principal) string {
	tok, err := s.auth.Issue(p, time.Hour)
	s.Require().NoError(err)
	return tok
}

// call sends a request as p and decodes the JSON response into out.
func (s *HTTPAPISuite) call(srv *httptest.Server, p *api.Principal, method, path string, body any, out any) *http.Response {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+BasePath+path, rd)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*p))
	}

	resp, err := srv.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *HTTPAPISuite) createPathway(p api.Principal) map[string]any {
	var out map[string]any
	resp := s.call(s.studio, &p, http.MethodPost, "/pathway/", map[string]any{
		"draft_data": map[string]any{
			"title": "A Test Pathway",
			"items": []map[string]any{
				{"original_usage_id": problemBlock},
				{"original_usage_id": htmlBlock, "data": map[string]any{"notes": "this is a test note."}},
			},
		},
	}, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode, out)
	return out
}

func items(data any) []any {
	return data.(map[string]any)["items"].([]any)
}

func (s *HTTPAPISuite) TestCreateAndGet() {
	created := s.createPathway(author)
	id := created["id"].(string)
	s.Require().Regexp(`^lx-pathway:[0-9a-f-]{36}$`, id)
	s.Require().EqualValues(10, created["owner_user_id"])
	s.Require().Nil(created["owner_group_name"])

	draft := created["draft_data"].(map[string]any)
	s.Require().Equal("A Test Pathway", draft["title"])
	s.Require().Len(items(draft), 2)
	first := items(draft)[0].(map[string]any)
	s.Require().Equal(problemBlock, first["original_usage_id"])
	s.Require().Contains(first["usage_id"], "lx-pb:")
	s.Require().Contains(first["usage_id"], ":problem:"+first["id"].(string))
	s.Require().Empty(items(created["published_data"]))

	var got map[string]any
	resp := s.call(s.studio, &author, http.MethodGet, "/pathway/"+id+"/", nil, &got)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(created, got)
	s.Require().NotEmpty(resp.Header.Get(RequestIDHeader))
}

func (s *HTTPAPISuite) TestCreateWithUUIDAndConflict() {
	body := map[string]any{"uuid": "b0fd731a-5bab-4fe2-8491-405292e5176e"}

	var out map[string]any
	resp := s.call(s.studio, &author, http.MethodPost, "/pathway/", body, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("lx-pathway:b0fd731a-5bab-4fe2-8491-405292e5176e", out["id"])
	s.Require().NotContains(out, "uuid")

	var detail detailJSON
	resp = s.call(s.studio, &author, http.MethodPost, "/pathway/", body, &detail)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().Equal("A conflicting pathway already exists.", detail.Detail)

	resp = s.call(s.studio, &author, http.MethodPost, "/pathway/", map[string]any{"uuid": "nope"}, &detail)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HTTPAPISuite) TestCreateRejectsPathwayItems() {
	var detail detailJSON
	resp := s.call(s.studio, &author, http.MethodPost, "/pathway/", map[string]any{
		"draft_data": map[string]any{"items": []map[string]any{
			{"original_usage_id": "lx-pb:00000000-e4fe-47af-8ff6-123456789000:unit:0ff24589"},
		}},
	}, &detail)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().Contains(detail.Detail, "Invalid asset key")
}

func (s *HTTPAPISuite) TestCreateForGroup() {
	var out map[string]any
	resp := s.call(s.studio, &author, http.MethodPost, "/pathway/", map[string]any{"owner_group_name": "authors"}, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("authors", out["owner_group_name"])
	s.Require().Nil(out["owner_user_id"])

	var detail detailJSON
	resp = s.call(s.studio, &author, http.MethodPost, "/pathway/", map[string]any{"owner_group_name": "editors"}, &detail)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().Contains(detail.Detail, "Invalid group name")

	resp = s.call(s.studio, &staff, http.MethodPost, "/pathway/", map[string]any{"owner_group_name": "editors"}, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	// An explicit null names no group; it does not fall back to the caller.
	detail = detailJSON{}
	resp = s.call(s.studio, &staff, http.MethodPost, "/pathway/", map[string]any{"owner_group_name": nil}, &detail)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().Contains(detail.Detail, "Invalid group name")
}

func (s *HTTPAPISuite) TestEditPublishRevert() {
	created := s.createPathway(author)
	path := "/pathway/" + created["id"].(string) + "/"
	draft := created["draft_data"].(map[string]any)
	origItems := items(draft)

	// Reorder and drop the problem: usage ids follow the items.
	newDraft := map[string]any{
		"title": "Edited",
		"items": []any{origItems[1], map[string]any{"original_usage_id": problemBlock}},
	}
	var updated map[string]any
	resp := s.call(s.studio, &author, http.MethodPatch, path, map[string]any{"draft_data": newDraft}, &updated)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	upItems := items(updated["draft_data"])
	s.Require().Equal(origItems[1].(map[string]any)["usage_id"], upItems[0].(map[string]any)["usage_id"])
	s.Require().NotEqual(origItems[0].(map[string]any)["usage_id"], upItems[1].(map[string]any)["usage_id"])

	var published map[string]any
	resp = s.call(s.studio, &author, http.MethodPost, path+"publish/", nil, &published)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(updated["draft_data"], published["published_data"])

	// LMS readers see the published data.
	var lmsView map[string]any
	resp = s.call(s.lms, &author, http.MethodGet, path, nil, &lmsView)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("Edited", lmsView["published_data"].(map[string]any)["title"])

	resp = s.call(s.studio, &author, http.MethodPatch, path, map[string]any{"draft_data": map[string]any{"title": "Scratch"}}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var reverted map[string]any
	resp = s.call(s.studio, &author, http.MethodDelete, path+"publish/", nil, &reverted)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("Edited", reverted["draft_data"].(map[string]any)["title"])

	var history []eventJSON
	resp = s.call(s.studio, &author, http.MethodGet, path+"history/", nil, &history)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	types := make([]api.EventType, len(history))
	for i, ev := range history {
		types[i] = ev.Type
	}
	s.Require().Equal([]api.EventType{
		api.EventPathwayCreated,
		api.EventPathwayDraftUpdated,
		api.EventPathwayPublished,
		api.EventPathwayDraftUpdated,
		api.EventPathwayReverted,
	}, types)
}

func (s *HTTPAPISuite) TestOwnerChangeIsStaffOnly() {
	created := s.createPathway(author)
	path := "/pathway/" + created["id"].(string) + "/"

	var detail detailJSON
	resp := s.call(s.studio, &author, http.MethodPatch, path, map[string]any{"owner_group_name": "editors"}, &detail)
	s.Require().Equal(http.StatusForbidden, resp.StatusCode)
	s.Require().Equal("Only global staff can change a pathway owner.", detail.Detail)

	var out map[string]any
	resp = s.call(s.studio, &staff, http.MethodPatch, path, map[string]any{"owner_user_id": nil, "owner_group_name": "editors"}, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("editors", out["owner_group_name"])
	s.Require().Nil(out["owner_user_id"])
}

func (s *HTTPAPISuite) TestDelete() {
	created := s.createPathway(author)
	path := "/pathway/" + created["id"].(string) + "/"

	var out map[string]any
	resp := s.call(s.studio, &author, http.MethodDelete, path, nil, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Empty(out)

	resp = s.call(s.studio, &author, http.MethodGet, path, nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HTTPAPISuite) TestList() {
	s.createPathway(author)
	s.createPathway(staff)

	var all []map[string]any
	resp := s.call(s.studio, &author, http.MethodGet, "/pathway/", nil, &all)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Len(all, 2)

	var mine []map[string]any
	resp = s.call(s.studio, &author, http.MethodGet, "/pathway/?owner_user_id=10", nil, &mine)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Len(mine, 1)

	resp = s.call(s.studio, &author, http.MethodGet, "/pathway/?owner_user_id=ten", nil, nil)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HTTPAPISuite) TestResolveBlock() {
	created := s.createPathway(author)
	path := "/pathway/" + created["id"].(string) + "/"
	usageID := items(created["draft_data"])[0].(map[string]any)["usage_id"].(string)

	var block blockJSON
	resp := s.call(s.studio, &author, http.MethodGet, "/block/"+usageID+"/", nil, &block)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(usageID, block.UsageKey)
	s.Require().Equal(problemBlock, block.OriginalUsageKey)
	s.Require().Equal("problem/p1/definition.xml", block.Definition.OLXPath)
	s.Require().Equal("lib:TestOrg:lib1", block.Definition.Context)

	// Nothing is published yet, so learners cannot see the block.
	resp = s.call(s.lms, &author, http.MethodGet, "/block/"+usageID+"/", nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)

	s.call(s.studio, &author, http.MethodPost, path+"publish/", nil, nil)
	resp = s.call(s.lms, &author, http.MethodGet, "/block/"+usageID+"/", nil, &block)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.call(s.studio, &author, http.MethodGet, "/block/"+problemBlock+"/", nil, &block)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Empty(block.OriginalUsageKey)

	resp = s.call(s.studio, &author, http.MethodGet, "/block/not-a-key/", nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HTTPAPISuite) TestResolveCourseBlock() {
	const courseBlock = "block-v1:edX+DemoX+2024+type@vertical+block@intro"
	var created map[string]any
	resp := s.call(s.studio, &author, http.MethodPost, "/pathway/", map[string]any{
		"draft_data": map[string]any{
			"items": []map[string]any{{"original_usage_id": courseBlock}},
		},
	}, &created)
	s.Require().Equal(http.StatusOK, resp.StatusCode, created)
	usageID := items(created["draft_data"])[0].(map[string]any)["usage_id"].(string)

	var block blockJSON
	resp = s.call(s.studio, &author, http.MethodGet, "/block/"+usageID+"/", nil, &block)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(courseBlock, block.OriginalUsageKey)
	s.Require().Equal("vertical/intro.xml", block.Definition.OLXPath)
	s.Require().Equal("course-v1:edX+DemoX+2024", block.Definition.Context)
}

func (s *HTTPAPISuite) TestLMSServesPathwayDetailView() {
	created := s.createPathway(author)
	path := "/pathway/" + created["id"].(string) + "/"

	var out map[string]any
	resp := s.call(s.lms, &author, http.MethodPatch, path, map[string]any{
		"draft_data": map[string]any{"title": "Edited in the LMS"},
	}, &out)
	s.Require().Equal(http.StatusOK, resp.StatusCode, out)
	s.Require().Equal("Edited in the LMS", out["draft_data"].(map[string]any)["title"])

	// Creating and publishing are Studio-only.
	resp = s.call(s.lms, &author, http.MethodPost, "/pathway/", map[string]any{}, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	resp = s.call(s.lms, &author, http.MethodPost, path+"publish/", nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.call(s.lms, &author, http.MethodDelete, path, nil, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp = s.call(s.studio, &author, http.MethodGet, path, nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HTTPAPISuite) TestLargeIntegersRoundTrip() {
	var created map[string]any
	resp := s.call(s.studio, &author, http.MethodPost, "/pathway/", map[string]any{
		"draft_data": map[string]any{
			"data": map[string]any{"external_id": json.Number("9007199254740993")},
			"items": []map[string]any{
				{"original_usage_id": problemBlock, "data": map[string]any{"seed": json.Number("12345678901234567890")}},
			},
		},
	}, &created)
	s.Require().Equal(http.StatusOK, resp.StatusCode, created)

	req, err := http.NewRequest(http.MethodGet, s.studio.URL+BasePath+"/pathway/"+created["id"].(string)+"/", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token(author))
	resp, err = s.studio.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	s.Require().Contains(string(raw), `"external_id":9007199254740993`)
	s.Require().Contains(string(raw), `"seed":12345678901234567890`)
}

func (s *HTTPAPISuite) TestAuthentication() {
	var detail detailJSON
	resp := s.call(s.studio, nil, http.MethodGet, "/pathway/", nil, &detail)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, s.studio.URL+BasePath+"/pathway/", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err = s.studio.Client().Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	// Authenticated but not on the allowlist.
	resp = s.call(s.studio, &other, http.MethodGet, "/pathway/", nil, &detail)
	s.Require().Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HTTPAPISuite) TestMalformedKeyIsNotFound() {
	resp := s.call(s.studio, &author, http.MethodGet, "/pathway/lx-pathway:not-a-uuid/", nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	resp = s.call(s.studio, &author, http.MethodGet, "/pathway/lx-pathway:b0fd731a-5bab-4fe2-8491-405292e5176e/", nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	auth, err := NewAuthenticator([]byte("test-secret"), "pathways-test")
	require.NoError(t, err)
	p := service.InMemoryPersistence()
	svc := service.New(service.Config{Persistence: p, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	newServer := func(origins []string) *httptest.Server {
		srv, err := New(Config{
			Service:        svc,
			Registry:       learningcontext.NewRegistryWithPathways(p.Pathways, true),
			Auth:           auth,
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			AllowedOrigins: origins,
		})
		require.NoError(t, err)
		ts := httptest.NewServer(srv.Handler(srv.StudioRouter(), "studio"))
		t.Cleanup(ts.Close)
		return ts
	}
	allowOrigin := func(ts *httptest.Server, origin string) string {
		req, err := http.NewRequest(http.MethodGet, ts.URL+BasePath+"/pathway/", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.Header.Get("Access-Control-Allow-Origin")
	}

	closed := newServer(nil)
	require.Empty(t, allowOrigin(closed, "https://evil.example"))

	listed := newServer([]string{"https://studio.example"})
	require.Equal(t, "https://studio.example", allowOrigin(listed, "https://studio.example"))
	require.Empty(t, allowOrigin(listed, "https://evil.example"))
}

func TestAuthenticator(t *testing.T) {
	_, err := NewAuthenticator(nil, "")
	require.Error(t, err)

	a, err := NewAuthenticator([]byte("secret"), "pathways")
	require.NoError(t, err)
	tok, err := a.Issue(staff, time.Minute)
	require.NoError(t, err)

	p, err := a.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, staff.Username, p.Username)
	require.Equal(t, staff.UserID, p.UserID)
	require.True(t, p.IsStaff)

	other, err := NewAuthenticator([]byte("other-secret"), "pathways")
	require.NoError(t, err)
	_, err = other.Verify(tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	a.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = a.Verify(tok)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&api.ValidationError{Field: "items", Message: "too many"}, http.StatusBadRequest},
		{api.WithDetail(api.ErrConflict, "taken"), http.StatusBadRequest},
		{api.ErrPermissionDenied, http.StatusForbidden},
		{api.ErrNotFound, http.StatusNotFound},
		{learningcontext.ErrBlockNotFound, http.StatusNotFound},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, detail := statusFor(tc.err)
		require.Equal(t, tc.status, status, tc.err)
		require.NotEmpty(t, detail)
	}
}
