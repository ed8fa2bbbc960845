package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/choraleia/xide/pkg/db"
	"github.com/choraleia/xide/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxRecentFiles is how many recently opened files are kept.
const MaxRecentFiles = 10

// RecentService remembers recently opened files and the last working folder.
type RecentService struct {
	db      *gorm.DB
	backend string
	logger  *slog.Logger
}

// NewRecentService records entries under backend ("local", "remote", or
// empty for entries arriving through the HTTP API).
func NewRecentService(gdb *gorm.DB, backend string) *RecentService {
	return &RecentService{db: gdb, backend: backend, logger: utils.GetLogger()}
}

// AutoMigrate creates database tables
func (s *RecentService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.RecentFile{}, &db.RecentFolder{})
}

// RecordFile moves p to the front of the recent files and trims the list.
func (s *RecentService) RecordFile(ctx context.Context, p string) error {
	p = strings.TrimSpace(p)
	if p == "" {
		return ErrInvalidArgument
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		if err := tx.Model(&db.RecentFile{}).Select("COALESCE(MAX(seq), 0)").Scan(&seq).Error; err != nil {
			return err
		}
		rec := db.RecentFile{Path: p, Backend: s.backend, OpenedAt: time.Now(), Seq: seq + 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"backend", "opened_at", "seq"}),
		}).Create(&rec).Error; err != nil {
			return err
		}

		var all []db.RecentFile
		if err := tx.Order("seq DESC").Find(&all).Error; err != nil {
			return err
		}
		if len(all) <= MaxRecentFiles {
			return nil
		}
		for _, f := range all[MaxRecentFiles:] {
			if err := tx.Delete(&db.RecentFile{}, "path = ?", f.Path).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordFolder stores p as the last working folder.
func (s *RecentService) RecordFolder(ctx context.Context, p string) error {
	p = strings.TrimSpace(p)
	if p == "" {
		return ErrInvalidArgument
	}
	rec := db.RecentFolder{ID: db.RecentFolderID, Path: p, Backend: s.backend, SelectedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Files returns the recent files, most recent first.
func (s *RecentService) Files(ctx context.Context) ([]string, error) {
	var recs []db.RecentFile
	if err := s.db.WithContext(ctx).Order("seq DESC").Limit(MaxRecentFiles).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Path)
	}
	return out, nil
}

// Folder returns the last working folder, or "" if none was recorded.
func (s *RecentService) Folder(ctx context.Context) (string, error) {
	var rec db.RecentFolder
	err := s.db.WithContext(ctx).First(&rec, db.RecentFolderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Path, nil
}
