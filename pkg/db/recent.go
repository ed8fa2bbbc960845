package db

import "time"

// RecentFile is a file the user opened, keyed by its host path.
type RecentFile struct {
	Path     string    `json:"path" gorm:"primaryKey;size:4096"`
	Backend  string    `json:"backend" gorm:"size:20"`
	OpenedAt time.Time `json:"opened_at"`
	// Seq orders entries; clock resolution is too coarse for quick reopens.
	Seq int64 `json:"-" gorm:"index"`
}

func (RecentFile) TableName() string {
	return "recent_files"
}

// RecentFolder is the last working folder. There is at most one row.
type RecentFolder struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	Path       string    `json:"path" gorm:"size:4096"`
	Backend    string    `json:"backend" gorm:"size:20"`
	SelectedAt time.Time `json:"selected_at"`
}

func (RecentFolder) TableName() string {
	return "recent_folder"
}

// RecentFolderID is the primary key of the single RecentFolder row.
const RecentFolderID = 1
