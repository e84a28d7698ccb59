package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regscout/regscout-backend/internal/data"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

// AccessCodeService validates admin access codes. Codes come from two
// places: the ADMIN_CODES env var (comma separated, survive restarts
// with no database) and generated rows in the access_codes table.
type AccessCodeService interface {
	Validate(ctx context.Context, code string) (bool, error)
	Generate(ctx context.Context, label string) (*data.AccessCode, error)
	List(ctx context.Context) ([]data.AccessCode, error)
}

type accessCodeService struct {
	log      *logger.Logger
	gdb      *gorm.DB
	envCodes map[string]bool
}

func NewAccessCodeService(log *logger.Logger, gdb *gorm.DB) AccessCodeService {
	envCodes := make(map[string]bool)
	for _, code := range strings.Split(envutil.Str("ADMIN_CODES", ""), ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			envCodes[code] = true
		}
	}
	return &accessCodeService{
		log:      log.With("service", "AccessCodeService"),
		gdb:      gdb,
		envCodes: envCodes,
	}
}

func (s *accessCodeService) Validate(ctx context.Context, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false, nil
	}
	if s.envCodes[code] {
		return true, nil
	}
	if s.gdb == nil {
		return false, nil
	}

	var row data.AccessCode
	err := s.gdb.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("look up access code: %w", err)
	}

	now := time.Now().UTC()
	if err := s.gdb.WithContext(ctx).Model(&row).
		Updates(map[string]any{"use_count": gorm.Expr("use_count + 1"), "last_used_at": now}).Error; err != nil {
		s.log.Warn("Failed to record access code use", "error", err)
	}
	return true, nil
}

func (s *accessCodeService) Generate(ctx context.Context, label string) (*data.AccessCode, error) {
	if s.gdb == nil {
		return nil, fmt.Errorf("access code storage not configured")
	}
	code, err := randomCode()
	if err != nil {
		return nil, err
	}
	row := &data.AccessCode{
		ID:        uuid.New(),
		Code:      code,
		Label:     strings.TrimSpace(label),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.gdb.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create access code: %w", err)
	}
	s.log.Info("Generated access code", "label", row.Label)
	return row, nil
}

func (s *accessCodeService) List(ctx context.Context) ([]data.AccessCode, error) {
	if s.gdb == nil {
		return nil, nil
	}
	var rows []data.AccessCode
	if err := s.gdb.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	return rows, nil
}

// randomCode returns codes like "RS-7KQ2M9XF". The alphabet drops
// easily confused characters.
func randomCode() (string, error) {
	const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return "RS-" + string(buf), nil
}
