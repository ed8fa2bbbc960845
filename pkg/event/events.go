package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	FSChanged        = "fs.changed"
	FSCreated        = "fs.created"
	FSDeleted        = "fs.deleted"
	FSRenamed        = "fs.renamed"
	FileOpened       = "vfs.fileOpened"
	DirectoryChanged = "vfs.directoryChanged"
	SessionOpened    = "vfs.sessionOpened"
	BackendSwitched  = "vfs.backendSwitched"
	CommandFinished  = "command.finished"
)

// ============================================================================
// Companion Service Events (host paths)
// ============================================================================

// FSChangedEvent is emitted when file contents change.
type FSChangedEvent struct {
	Paths []string `json:"paths"` // Affected host paths (empty means "check everything")
}

func (e FSChangedEvent) EventName() string { return FSChanged }

// FSCreatedEvent is emitted when a file/directory is created.
type FSCreatedEvent struct {
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

func (e FSCreatedEvent) EventName() string { return FSCreated }

// FSDeletedEvent is emitted when a file/directory is deleted.
type FSDeletedEvent struct {
	Path string `json:"path"`
}

func (e FSDeletedEvent) EventName() string { return FSDeleted }

// FSRenamedEvent is emitted when a file/directory is renamed/moved.
type FSRenamedEvent struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

func (e FSRenamedEvent) EventName() string { return FSRenamed }

// CommandFinishedEvent is emitted after /api/command/execute completes.
type CommandFinishedEvent struct {
	Command  string `json:"command"`
	Cwd      string `json:"cwd"`
	ExitCode int    `json:"exitCode"`
}

func (e CommandFinishedEvent) EventName() string { return CommandFinished }

// ============================================================================
// Editor Events (logical paths, emitted by the vfs facade)
// ============================================================================

// FileOpenedEvent asks the editor to load a file that was just read.
type FileOpenedEvent struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
	Backend  string `json:"backend"`
}

func (e FileOpenedEvent) EventName() string { return FileOpened }

// DirectoryChangedEvent tells tree views that Path's children changed.
// Target is the entry the change happened to; Change is add, addDir,
// change, unlink, unlinkDir, or empty for a mutation made through the facade.
type DirectoryChangedEvent struct {
	Path    string `json:"path"`
	Target  string `json:"target,omitempty"`
	Change  string `json:"change,omitempty"`
	Backend string `json:"backend"`
}

func (e DirectoryChangedEvent) EventName() string { return DirectoryChanged }

// SessionOpenedEvent is emitted after a working directory is selected.
type SessionOpenedEvent struct {
	Label    string `json:"label"`
	Backend  string `json:"backend"`
	HostPath string `json:"hostPath,omitempty"`
}

func (e SessionOpenedEvent) EventName() string { return SessionOpened }

// BackendSwitchedEvent is emitted when the active backend changes, either by
// user choice or by fallback.
type BackendSwitchedEvent struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func (e BackendSwitchedEvent) EventName() string { return BackendSwitched }
