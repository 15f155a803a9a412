package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/liveset-cataloger/internal/catalog"
	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
	"github.com/mantonx/liveset-cataloger/internal/events"
	"github.com/mantonx/liveset-cataloger/internal/ingest"
	"github.com/mantonx/liveset-cataloger/internal/media"
	"github.com/mantonx/liveset-cataloger/internal/scanner"
)

func newTestRouter(t *testing.T) (*gin.Engine, Dependencies) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := catalogdb.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := catalog.NewStore(db)
	bus := events.NewBus()
	mediaStore := media.New(db, media.Config{
		Root:              t.TempDir(),
		MaxCoverArtBytes:  1 << 20,
		MaxAudioFileBytes: 10 << 20,
		AllowedImageExts:  []string{".png"},
		AllowedAudioExts:  []string{".wav"},
	})
	if err := mediaStore.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	deps := Dependencies{
		Store: store,
		Bus:   bus,
		Media: mediaStore,
		NewScanner: func() *scanner.Orchestrator {
			return scanner.New(store, bus, scanner.Config{})
		},
	}
	return SetupRouter(deps), deps
}

func seedProject(t *testing.T, deps Dependencies, path, name string) *catalogdb.Project {
	t.Helper()
	p, err := deps.Store.UpsertProject(catalog.UpsertProjectInput{
		Path: path,
		Hash: "h1",
		Name: name,
		Project: &ingest.FinalizedProject{
			Tempo:   120,
			TimeSig: ingest.TimeSignature{Numerator: 1, Denominator: 4},
		},
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func doRequest(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListProjects(t *testing.T) {
	r, deps := newTestRouter(t)
	seedProject(t, deps, "/sets/a.als", "A")

	w := doRequest(r, http.MethodGet, "/api/projects", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Projects []catalogdb.Project `json:"projects"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(resp.Projects))
	}
}

func TestGetProjectNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/projects/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpdateProjectNotes(t *testing.T) {
	r, deps := newTestRouter(t)
	p := seedProject(t, deps, "/sets/a.als", "A")

	body, _ := json.Marshal(map[string]string{"notes": "great take"})
	w := doRequest(r, http.MethodPut, "/api/projects/"+strconv.FormatUint(uint64(p.ID), 10)+"/notes", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var reloaded catalogdb.Project
	if err := deps.Store.DB.First(&reloaded, p.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Notes != "great take" {
		t.Fatalf("notes = %q", reloaded.Notes)
	}
}

func TestSearchProjectsEndpoint(t *testing.T) {
	r, deps := newTestRouter(t)
	seedProject(t, deps, "/sets/a.als", "Ambient Set")

	w := doRequest(r, http.MethodGet, "/api/projects/search?q=Ambient", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []catalog.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d: %s", len(resp.Results), w.Body.String())
	}
}

func TestSearchProjectsEmptyQueryReturnsEmptyResults(t *testing.T) {
	r, deps := newTestRouter(t)
	seedProject(t, deps, "/sets/a.als", "Ambient Set")

	w := doRequest(r, http.MethodGet, "/api/projects/search", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Results []catalog.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected 0 results for empty query, got %d", len(resp.Results))
	}
}

func TestCreateAndGetCollection(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"name": "Faves"})
	w := doRequest(r, http.MethodPost, "/api/collections", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var created catalogdb.Collection
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected assigned id")
	}

	w2 := doRequest(r, http.MethodGet, "/api/collections/"+created.ID, nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("get status = %d", w2.Code)
	}
}

func TestCreateCollectionRequiresName(t *testing.T) {
	r, _ := newTestRouter(t)
	body, _ := json.Marshal(map[string]string{})
	w := doRequest(r, http.MethodPost, "/api/collections", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAttachAndDetachProjectTag(t *testing.T) {
	r, deps := newTestRouter(t)
	p := seedProject(t, deps, "/sets/a.als", "A")

	tagBody, _ := json.Marshal(map[string]string{"name": "ambient"})
	tagResp := doRequest(r, http.MethodPost, "/api/tags", tagBody)
	if tagResp.Code != http.StatusCreated {
		t.Fatalf("create tag status = %d", tagResp.Code)
	}
	var tag catalogdb.Tag
	if err := json.Unmarshal(tagResp.Body.Bytes(), &tag); err != nil {
		t.Fatalf("unmarshal tag: %v", err)
	}

	attachBody, _ := json.Marshal(map[string]string{"tag_id": tag.ID})
	attachResp := doRequest(r, http.MethodPost, "/api/projects/"+strconv.FormatUint(uint64(p.ID), 10)+"/tags", attachBody)
	if attachResp.Code != http.StatusNoContent {
		t.Fatalf("attach status = %d body=%s", attachResp.Code, attachResp.Body.String())
	}

	searchResp := doRequest(r, http.MethodGet, "/api/projects/search?q=tag:ambient", nil)
	var searchBody struct {
		Results []catalog.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(searchResp.Body.Bytes(), &searchBody); err != nil {
		t.Fatalf("unmarshal search: %v", err)
	}
	if len(searchBody.Results) != 1 {
		t.Fatalf("expected 1 result for tag:ambient after attach, got %d", len(searchBody.Results))
	}

	detachResp := doRequest(r, http.MethodDelete, "/api/projects/"+strconv.FormatUint(uint64(p.ID), 10)+"/tags/"+tag.ID, nil)
	if detachResp.Code != http.StatusNoContent {
		t.Fatalf("detach status = %d", detachResp.Code)
	}

	searchResp2 := doRequest(r, http.MethodGet, "/api/projects/search?q=tag:ambient", nil)
	var searchBody2 struct {
		Results []catalog.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(searchResp2.Body.Bytes(), &searchBody2); err != nil {
		t.Fatalf("unmarshal search: %v", err)
	}
	if len(searchBody2.Results) != 0 {
		t.Fatalf("expected 0 results for tag:ambient after detach, got %d", len(searchBody2.Results))
	}
}

func TestCreateAndDeleteTag(t *testing.T) {
	r, _ := newTestRouter(t)
	body, _ := json.Marshal(map[string]string{"name": "ambient"})
	w := doRequest(r, http.MethodPost, "/api/tags", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var tag catalogdb.Tag
	if err := json.Unmarshal(w.Body.Bytes(), &tag); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w2 := doRequest(r, http.MethodDelete, "/api/tags/"+tag.ID, nil)
	if w2.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w2.Code)
	}
}

func TestUploadDownloadAndDeleteCoverArt(t *testing.T) {
	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "cover.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("fake-png"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/media/cover-art", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body=%s", w.Code, w.Body.String())
	}

	var mf catalogdb.MediaFile
	if err := json.Unmarshal(w.Body.Bytes(), &mf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w2 := doRequest(r, http.MethodGet, "/api/media/"+mf.ID+"/download", nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("download status = %d", w2.Code)
	}
	if w2.Body.String() != "fake-png" {
		t.Fatalf("downloaded body = %q", w2.Body.String())
	}

	w3 := doRequest(r, http.MethodDelete, "/api/media/"+mf.ID, nil)
	if w3.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w3.Code)
	}
}
