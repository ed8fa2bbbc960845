package models

import "time"

// Wire types of the companion file service. Every mutating endpoint answers
// with at least {success, error?, code?}.

// Status is embedded in every file service response.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s Status) GetStatus() Status { return s }

type PathRequest struct {
	Path string `json:"path"`
}

type WriteFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type RenameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type MoveRequest struct {
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`
}

type CommandRequest struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

const (
	ItemTypeFile      = "file"
	ItemTypeDirectory = "directory"
)

// FileItem is one directory listing entry. Path is the absolute host path.
type FileItem struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Path     string    `json:"path,omitempty"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type DirectoryExistsResponse struct {
	Exists bool `json:"exists"`
}

type DirectoryReadResponse struct {
	Status
	Items []FileItem `json:"items"`
}

type FileReadResponse struct {
	Status
	Content string `json:"content"`
}

type MoveResponse struct {
	Status
	DestinationPath string `json:"destinationPath,omitempty"`
}

type ExistsResponse struct {
	Status
	Exists bool `json:"exists"`
}

type CommandResponse struct {
	Status
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// WatchEvent is the payload of each server-sent event on /api/watch.
type WatchEvent struct {
	Event string `json:"event"`
	Path  string `json:"path"`
}

type RecentResponse struct {
	Status
	Files  []string `json:"files"`
	Folder string   `json:"folder,omitempty"`
}
