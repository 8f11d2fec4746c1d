package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/controllers"
	"github.com/yigit/problemportal/internal/app/migrations"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/middleware"
	"github.com/yigit/problemportal/internal/pkg/auth"
	"github.com/yigit/problemportal/internal/pkg/csvmirror"
	"github.com/yigit/problemportal/internal/pkg/filestorage"
	"github.com/yigit/problemportal/internal/pkg/otp"
	"github.com/yigit/problemportal/internal/seed"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
	auth.BcryptCost = bcrypt.MinCost
}

type capturedCode struct {
	to   string
	code string
}

type captureMailer struct {
	sent []capturedCode
}

func (m *captureMailer) SendOTPEmail(toEmail, _ string, code string, _ time.Duration) error {
	m.sent = append(m.sent, capturedCode{to: toEmail, code: code})
	return nil
}

// envelope mirrors dto.APIResponse with the payload left undecoded.
type envelope struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	Data       json.RawMessage     `json:"data"`
	Pagination *dto.PaginationInfo `json:"pagination"`
	Error      *dto.ErrorDetail    `json:"error"`
}

type testServer struct {
	router *gin.Engine
	mailer *captureMailer
	dir    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	lgr := zerolog.Nop()

	database, err := db.Connect(ctx, db.Options{Path: filepath.Join(dir, "portal.db")}, lgr)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := migrations.NewMigrator(database, lgr).EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	repos := repositories.NewRepositories(lgr)
	if err := seed.CreateDefaultData(ctx, database, repos.AdminRepository, seed.Options{AdminID: "admin", AdminPassword: "admin123"}, lgr); err != nil {
		t.Fatalf("seed: %v", err)
	}

	storage, err := filestorage.NewLocalStorage(filepath.Join(dir, "uploads"), lgr)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	exporter := csvmirror.NewExporter(filepath.Join(dir, "problems.csv"), filepath.Join(dir, "students.csv"), lgr)
	mirror := services.NewMirrorService(database, repos.ProblemRepository, repos.StudentRepository, exporter, lgr)
	sessions := auth.NewSessionService(auth.SessionConfig{SecretKey: "test-secret", TTL: time.Hour})
	mailer := &captureMailer{}

	problemService := services.NewProblemService(database, repos.ProblemRepository, storage, mirror, lgr)
	studentService := services.NewStudentService(database, repos.StudentRepository, mirror, lgr)
	importService := services.NewImportService(database, repos.StudentRepository, repos.ProblemRepository, mirror, lgr)
	authService := services.NewAuthService(database, repos.StudentRepository, repos.AdminRepository, sessions,
		otp.NewManager(otp.NewMemoryStore(), 5*time.Minute, 6), mailer, mirror, lgr)

	router := gin.New()
	SetupRouter(router, Controllers{
		Auth:    controllers.NewAuthController(authService, false, lgr),
		Problem: controllers.NewProblemController(problemService, studentService),
		Student: controllers.NewStudentController(studentService),
		Upload:  controllers.NewUploadController(storage, lgr),
		Mirror:  controllers.NewMirrorController(mirror, importService),
	}, middleware.NewAuthMiddleware(sessions))

	return &testServer{router: router, mailer: mailer, dir: dir}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, body, "application/json", cookie)
}

// login posts credentials and returns the session cookie.
func (s *testServer) login(t *testing.T, path string, payload interface{}) *http.Cookie {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, path, payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", path, w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatalf("login %s: no session cookie", path)
	return nil
}

func (s *testServer) adminCookie(t *testing.T) *http.Cookie {
	return s.login(t, "/api/v1/auth/admin/login", map[string]string{"id": "admin", "password": "admin123"})
}

// addStudent creates a student through the admin API and logs them in with
// their initial password (the date of birth).
func (s *testServer) addStudent(t *testing.T, admin *http.Cookie, roll, email string) *http.Cookie {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, "/api/v1/admin/students", map[string]string{
		"roll_no": roll, "name": "Student " + roll, "branch": "CSE", "batch": "2021",
		"dob": "2003-05-04", "email": email,
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("add student: status %d body %s", w.Code, w.Body.String())
	}
	return s.login(t, "/api/v1/auth/student/login", map[string]string{"roll_no": roll, "password": "2003-05-04"})
}

// problemForm builds a multipart body with the required fields and optional
// files keyed by form field.
func problemForm(t *testing.T, title string, files map[string]string) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"title": title, "description": "desc", "skill": "Go", "category": "Web", "branch": "CSE",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for field, name := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte("%PDF-1.4 test"))
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	env := decode(t, w)
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func submit(t *testing.T, s *testServer, cookie *http.Cookie, title string, files map[string]string) dto.ProblemSubmitResponse {
	t.Helper()
	body, ct := problemForm(t, title, files)
	w := s.do(t, http.MethodPost, "/api/v1/student/problems", body, ct, cookie)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: status %d body %s", w.Code, w.Body.String())
	}
	var resp dto.ProblemSubmitResponse
	decodeData(t, w, &resp)
	return resp
}

func TestProblemLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	student := s.addStudent(t, admin, "21cs001", "asha@example.edu")

	resp := submit(t, s, student, "Smart Irrigation", map[string]string{"synopsis": "plan.pdf"})
	p := resp.Problem
	if p.Status != models.StatusPending || p.CreatedByRoll != "21CS001" {
		t.Fatalf("submitted problem = %+v", p)
	}
	if p.SynopsisPath == nil {
		t.Fatal("synopsis path not recorded")
	}
	problemPath := "/api/v1/problems/" + strconv.FormatInt(p.ID, 10)

	// pending problems are not public
	var public []*models.Problem
	decodeData(t, s.do(t, http.MethodGet, "/api/v1/problems", nil, "", nil), &public)
	if len(public) != 0 {
		t.Fatalf("pending problem listed publicly: %+v", public)
	}

	if w := s.do(t, http.MethodGet, problemPath, nil, "", student); w.Code != http.StatusOK {
		t.Fatalf("owner view: status %d", w.Code)
	}

	approvePath := "/api/v1/admin/problems/" + strconv.FormatInt(p.ID, 10) + "/approve"
	if w := s.do(t, http.MethodPost, approvePath, nil, "", admin); w.Code != http.StatusOK {
		t.Fatalf("approve: status %d body %s", w.Code, w.Body.String())
	}

	decodeData(t, s.do(t, http.MethodGet, "/api/v1/problems", nil, "", nil), &public)
	if len(public) != 1 || public[0].Status != models.StatusApproved {
		t.Fatalf("approved listing = %+v", public)
	}

	upload := "/uploads/" + *p.SynopsisPath
	w := s.do(t, http.MethodGet, upload, nil, "", student)
	if w.Code != http.StatusOK {
		t.Fatalf("upload fetch: status %d body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Errorf("Cache-Control = %q", cc)
	}
	if w := s.do(t, http.MethodGet, upload, nil, "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous upload fetch: status %d", w.Code)
	}

	deletePath := "/api/v1/admin/problems/" + strconv.FormatInt(p.ID, 10)
	if w := s.do(t, http.MethodDelete, deletePath, nil, "", admin); w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, upload, nil, "", student); w.Code != http.StatusNotFound {
		t.Fatalf("deleted upload still served: status %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, problemPath, nil, "", admin); w.Code != http.StatusNotFound {
		t.Fatalf("deleted problem: status %d", w.Code)
	}
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	student := s.addStudent(t, admin, "21CS002", "b@example.edu")

	tests := []struct {
		name   string
		method string
		path   string
		cookie *http.Cookie
		want   int
	}{
		{"anonymous student area", http.MethodGet, "/api/v1/student/problems", nil, http.StatusUnauthorized},
		{"admin in student area", http.MethodGet, "/api/v1/student/problems", admin, http.StatusForbidden},
		{"student in admin area", http.MethodGet, "/api/v1/admin/problems", student, http.StatusForbidden},
		{"student dashboard", http.MethodGet, "/api/v1/student/problems", student, http.StatusOK},
		{"admin listing", http.MethodGet, "/api/v1/admin/problems", admin, http.StatusOK},
		{"bad cookie", http.MethodGet, "/api/v1/auth/me", &http.Cookie{Name: auth.SessionCookieName, Value: "garbage"}, http.StatusUnauthorized},
		{"me", http.MethodGet, "/api/v1/auth/me", student, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, tt.method, tt.path, nil, "", tt.cookie); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	owner := s.addStudent(t, admin, "21CS010", "owner@example.edu")
	other := s.addStudent(t, admin, "21CS011", "other@example.edu")

	p := submit(t, s, owner, "Water Meter", nil).Problem
	editPath := "/api/v1/student/problems/" + strconv.FormatInt(p.ID, 10)

	// another student's problem looks missing
	body, ct := problemForm(t, "Hijack", nil)
	w := s.do(t, http.MethodPut, editPath, body, ct, other)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign edit: status %d", w.Code)
	}
	if env := decode(t, w); env.Error == nil || env.Error.Code != dto.ErrorCodeResourceNotFound {
		t.Fatalf("foreign edit error = %+v", env.Error)
	}

	// duplicate title
	body, ct = problemForm(t, "Water Meter", nil)
	w = s.do(t, http.MethodPost, "/api/v1/student/problems", body, ct, other)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate title: status %d", w.Code)
	}
	if env := decode(t, w); env.Error.Code != dto.ErrorCodeConflict || !strings.Contains(env.Error.Message, "title") {
		t.Fatalf("duplicate title error = %+v", env.Error)
	}

	// blank required field
	body, ct = problemForm(t, "   ", nil)
	if w := s.do(t, http.MethodPost, "/api/v1/student/problems", body, ct, owner); w.Code != http.StatusBadRequest {
		t.Fatalf("blank title: status %d", w.Code)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/admin/problems/abc/approve", nil, "", admin); w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id: status %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/problems/999/approve", nil, "", admin); w.Code != http.StatusNotFound {
		t.Fatalf("missing problem: status %d", w.Code)
	}

	w = s.doJSON(t, http.MethodPost, "/api/v1/admin/students", map[string]string{
		"roll_no": "21cs010", "name": "Dup", "email": "new@example.edu",
	}, admin)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate roll: status %d", w.Code)
	}
	if env := decode(t, w); env.Error.Message != "Roll No already exists" {
		t.Fatalf("duplicate roll message = %q", env.Error.Message)
	}

	w = s.doJSON(t, http.MethodPost, "/api/v1/auth/student/login", map[string]string{"roll_no": "21CS010", "password": "nope"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d", w.Code)
	}
}

func TestStudentEditResubmits(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	student := s.addStudent(t, admin, "21CS020", "c@example.edu")

	p := submit(t, s, student, "Solar Tracker", nil).Problem
	idPath := strconv.FormatInt(p.ID, 10)

	w := s.doJSON(t, http.MethodPost, "/api/v1/admin/problems/"+idPath+"/reject", map[string]string{"reason": "needs detail"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: status %d body %s", w.Code, w.Body.String())
	}

	body, ct := problemForm(t, "Solar Tracker v2", map[string]string{"report": "report.pdf"})
	w = s.do(t, http.MethodPut, "/api/v1/student/problems/"+idPath, body, ct, student)
	if w.Code != http.StatusOK {
		t.Fatalf("edit: status %d body %s", w.Code, w.Body.String())
	}
	var resp dto.ProblemSubmitResponse
	decodeData(t, w, &resp)
	if resp.Problem.Status != models.StatusPending || resp.Problem.Title != "Solar Tracker v2" || resp.Problem.ReportPath == nil {
		t.Fatalf("edited problem = %+v", resp.Problem)
	}

	var dash dto.StudentProblemsResponse
	decodeData(t, s.do(t, http.MethodGet, "/api/v1/student/problems", nil, "", student), &dash)
	if len(dash.Mine) != 1 || len(dash.Others) != 0 {
		t.Fatalf("dashboard = %+v", dash)
	}
}

func TestAdminListPagination(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	student := s.addStudent(t, admin, "21CS030", "d@example.edu")
	for _, title := range []string{"A", "B", "C"} {
		submit(t, s, student, title, nil)
	}

	w := s.do(t, http.MethodGet, "/api/v1/admin/problems?page=1&size=2", nil, "", admin)
	env := decode(t, w)
	if env.Pagination == nil || env.Pagination.TotalItems != 3 || env.Pagination.TotalPages != 2 {
		t.Fatalf("pagination = %+v", env.Pagination)
	}
	var page []*models.Problem
	json.Unmarshal(env.Data, &page)
	if len(page) != 2 || page[0].Title != "C" {
		t.Fatalf("first page = %+v", page)
	}

	env = decode(t, s.do(t, http.MethodGet, "/api/v1/admin/problems", nil, "", admin))
	if env.Pagination != nil {
		t.Fatalf("unpaged listing carried pagination: %+v", env.Pagination)
	}
}

func TestExportProblemsCSV(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	student := s.addStudent(t, admin, "21CS040", "e@example.edu")
	submit(t, s, student, "Exported", nil)

	w := s.do(t, http.MethodGet, "/api/v1/admin/export/problems.csv", nil, "", admin)
	if w.Code != http.StatusOK {
		t.Fatalf("export: status %d", w.Code)
	}
	records, err := csvmirror.Read(w.Body)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 || records[0].Get("title") != "Exported" {
		t.Fatalf("exported records = %+v", records)
	}
}

func TestForgotPasswordOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminCookie(t)
	s.addStudent(t, admin, "21CS050", "f@example.edu")

	w := s.doJSON(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"roll_no": "21cs050", "dob": "2003-01-01"}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("wrong dob: status %d", w.Code)
	}

	w = s.doJSON(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"roll_no": "21cs050", "dob": "2003-05-04"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("forgot: status %d body %s", w.Code, w.Body.String())
	}
	if len(s.mailer.sent) != 1 || s.mailer.sent[0].to != "f@example.edu" {
		t.Fatalf("mail = %+v", s.mailer.sent)
	}

	reset := map[string]string{"roll_no": "21CS050", "new_password": "fresh-pass", "confirm_password": "fresh-pass"}
	if w := s.doJSON(t, http.MethodPost, "/api/v1/auth/reset-password", reset, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unverified reset: status %d", w.Code)
	}

	w = s.doJSON(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{"roll_no": "21CS050", "otp": s.mailer.sent[0].code}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status %d body %s", w.Code, w.Body.String())
	}
	if w := s.doJSON(t, http.MethodPost, "/api/v1/auth/reset-password", reset, nil); w.Code != http.StatusOK {
		t.Fatalf("reset: status %d body %s", w.Code, w.Body.String())
	}

	s.login(t, "/api/v1/auth/student/login", map[string]string{"roll_no": "21CS050", "password": "fresh-pass"})
}

func TestAdminSetsStudentPassword(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.adminCookie(t)
	srv.addStudent(t, admin, "21CS001", "a@example.edu")

	w := srv.doJSON(t, http.MethodPost, "/api/v1/admin/students/21cs001/password", map[string]string{"new_password": "reset99"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("set password: status %d body %s", w.Code, w.Body.String())
	}
	srv.login(t, "/api/v1/auth/student/login", map[string]string{"roll_no": "21CS001", "password": "reset99"})

	w = srv.doJSON(t, http.MethodPost, "/api/v1/auth/student/login", map[string]string{"roll_no": "21CS001", "password": "2003-05-04"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old password login: status %d", w.Code)
	}

	w = srv.doJSON(t, http.MethodPost, "/api/v1/admin/students/99XX999/password", map[string]string{"new_password": "reset99"}, admin)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing student: status %d", w.Code)
	}
}
