package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/migrations"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/auth"
	"github.com/yigit/problemportal/internal/pkg/csvmirror"
	"github.com/yigit/problemportal/internal/pkg/filestorage"
	"github.com/yigit/problemportal/internal/pkg/otp"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.BcryptCost = bcrypt.MinCost
}

// sentMail records OTP emails instead of sending them.
type sentMail struct {
	to   string
	code string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) SendOTPEmail(toEmail, _ string, code string, _ time.Duration) error {
	m.sent = append(m.sent, sentMail{to: toEmail, code: code})
	return nil
}

type testEnv struct {
	db       *db.DB
	repos    *repositories.Repositories
	storage  *filestorage.LocalStorage
	exporter *csvmirror.Exporter
	mirror   MirrorService
	problems ProblemService
	students StudentService
	auth     *AuthService
	imports  ImportService
	mailer   *fakeMailer
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
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

	storage, err := filestorage.NewLocalStorage(filepath.Join(dir, "uploads"), lgr)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	repos := repositories.NewRepositories(lgr)
	exporter := csvmirror.NewExporter(filepath.Join(dir, "problems.csv"), filepath.Join(dir, "students.csv"), lgr)
	mirror := NewMirrorService(database, repos.ProblemRepository, repos.StudentRepository, exporter, lgr)
	sessions := auth.NewSessionService(auth.SessionConfig{SecretKey: "test-secret", TTL: time.Hour})
	mailer := &fakeMailer{}

	return &testEnv{
		db:       database,
		repos:    repos,
		storage:  storage,
		exporter: exporter,
		mirror:   mirror,
		problems: NewProblemService(database, repos.ProblemRepository, storage, mirror, lgr),
		students: NewStudentService(database, repos.StudentRepository, mirror, lgr),
		auth: NewAuthService(database, repos.StudentRepository, repos.AdminRepository, sessions,
			otp.NewManager(otp.NewMemoryStore(), 5*time.Minute, 6), mailer, mirror, lgr),
		imports: NewImportService(database, repos.StudentRepository, repos.ProblemRepository, mirror, lgr),
		mailer:  mailer,
		dir:     dir,
	}
}

// exec runs raw statements for test setup.
func (e *testEnv) exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	err := e.db.WithConn(context.Background(), func(ctx context.Context, conn *db.Conn) error {
		_, err := conn.Execute(ctx, query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// uploadsOf builds multipart file headers keyed by slot from name/content
// pairs.
func uploadsOf(t *testing.T, files map[filestorage.Slot][2]string) Uploads {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for slot, f := range files {
		part, err := mw.CreateFormFile(string(slot), f[0])
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte(f[1]))
	}
	mw.Close()

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })

	uploads := Uploads{}
	for slot := range files {
		uploads[slot] = form.File[string(slot)][0]
	}
	return uploads
}
