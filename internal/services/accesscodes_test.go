package services

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/regscout/regscout-backend/internal/data"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&data.Feedback{}, &data.AccessCode{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestValidateEnvCode(t *testing.T) {
	t.Setenv("ADMIN_CODES", "admin-tudor, RS-SECOND")
	svc := NewAccessCodeService(logger.NewNop(), nil)

	cases := []struct {
		code string
		want bool
	}{
		{"ADMIN-TUDOR", true},
		{"admin-tudor", true},
		{" RS-SECOND ", true},
		{"RS-UNKNOWN", false},
		{"", false},
	}
	for _, tc := range cases {
		ok, err := svc.Validate(context.Background(), tc.code)
		if err != nil {
			t.Fatalf("Validate(%q): %v", tc.code, err)
		}
		if ok != tc.want {
			t.Errorf("Validate(%q) = %v, want %v", tc.code, ok, tc.want)
		}
	}
}

func TestGenerateAndValidateStoredCode(t *testing.T) {
	t.Setenv("ADMIN_CODES", "")
	gdb := newTestDB(t)
	svc := NewAccessCodeService(logger.NewNop(), gdb)

	row, err := svc.Generate(context.Background(), "beta tester")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(row.Code, "RS-") || len(row.Code) != 11 {
		t.Fatalf("code format = %q", row.Code)
	}

	ok, err := svc.Validate(context.Background(), strings.ToLower(row.Code))
	if err != nil || !ok {
		t.Fatalf("Validate = %v, %v", ok, err)
	}

	// Validate records the use.
	var stored data.AccessCode
	if err := gdb.Where("code = ?", row.Code).First(&stored).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.UseCount != 1 || stored.LastUsedAt == nil {
		t.Fatalf("use tracking = %+v", stored)
	}

	codes, err := svc.List(context.Background())
	if err != nil || len(codes) != 1 {
		t.Fatalf("List = %v, %v", codes, err)
	}
}

func TestValidateUnknownStoredCode(t *testing.T) {
	t.Setenv("ADMIN_CODES", "")
	svc := NewAccessCodeService(logger.NewNop(), newTestDB(t))

	ok, err := svc.Validate(context.Background(), "RS-MISSING1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("unknown code validated")
	}
}
