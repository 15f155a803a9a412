// Package catalogdb defines the relational schema for the project catalog:
// GORM models, join tables, and the connection setup (pooling, pragmas,
// migrations including the FTS5 virtual table).
package catalogdb

import "time"

// Project is the central catalog entity, identified by (FileHash, FilePath).
type Project struct {
	ID             uint      `gorm:"primaryKey"`
	FilePath       string    `gorm:"uniqueIndex;not null"`
	FileHash       string    `gorm:"index;not null"`
	Name           string    `gorm:"not null"`
	CreatedAt      time.Time
	ModifiedAt     time.Time
	LastParsedAt   time.Time
	Tempo          float64 `gorm:"not null"`
	TimeSigNum     int     `gorm:"column:ts_num;not null"`
	TimeSigDenom   int     `gorm:"column:ts_denom;not null"`
	KeyTonic       *string
	KeyScale       *string
	DurationS      *float64
	FurthestBar    *float64
	VersionMajor   int
	VersionMinor   int
	VersionPatch   int
	VersionBeta    bool
	Notes          string
	IsActive       bool `gorm:"not null;default:true"`
	AudioFileID    *string

	Plugins     []Plugin     `gorm:"many2many:project_plugins;"`
	Samples     []Sample     `gorm:"many2many:project_samples;"`
	Tags        []Tag        `gorm:"many2many:project_tags;"`
	Tasks       []Task       `gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string { return "projects" }

// Plugin is keyed by DevIdentifier, the cross-reference into the external
// Plugin DB. Format is one of the four device-identifier classes.
type Plugin struct {
	ID             uint   `gorm:"primaryKey"`
	DevIdentifier  string `gorm:"uniqueIndex;not null"`
	Name           string `gorm:"not null"`
	Format         string `gorm:"not null"` // vst2-instrument|vst2-audiofx|vst3-instrument|vst3-audiofx
	Installed      bool   `gorm:"not null"`
	Vendor         *string
	Version        *string
	SDKVersion     *string
	Flags          *int
	ScanState      *int
	Enabled        *bool

	Projects []Project `gorm:"many2many:project_plugins;"`
}

func (Plugin) TableName() string { return "plugins" }

// Sample is identified by (Name, Path); presence is computed lazily.
type Sample struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex:idx_sample_identity;not null"`
	Path      string `gorm:"uniqueIndex:idx_sample_identity;not null"`
	IsPresent bool   `gorm:"-"` // computed on read, never persisted

	Projects []Project `gorm:"many2many:project_samples;"`
}

func (Sample) TableName() string { return "samples" }

// Tag is a user-defined label, many-to-many with Project.
type Tag struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time

	Projects []Project `gorm:"many2many:project_tags;"`
}

func (Tag) TableName() string { return "tags" }

// Collection is an ordered, user-curated set of Projects.
type Collection struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Name        string `gorm:"not null"`
	Description *string
	Notes       *string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	CoverArtID  *string

	Members []CollectionProject `gorm:"foreignKey:CollectionID"`
}

func (Collection) TableName() string { return "collections" }

// CollectionProject is the ordered join row between Collection and Project.
type CollectionProject struct {
	CollectionID string `gorm:"primaryKey"`
	ProjectID    uint   `gorm:"primaryKey"`
	Position     int    `gorm:"not null"`
}

func (CollectionProject) TableName() string { return "collection_projects" }

// Task is an owned TODO item attached to a single Project.
type Task struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	ProjectID   uint   `gorm:"not null;index"`
	Description string `gorm:"not null"`
	Completed   bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
}

func (Task) TableName() string { return "tasks" }

// MediaFile is a content-addressed blob record (cover art or rendered
// audio). The backing blob lives at <root>/<subdir>/<ID>.<FileExtension>.
type MediaFile struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)"`
	OriginalFilename  string    `gorm:"not null"`
	FileExtension     string    `gorm:"not null"`
	MediaType         string    `gorm:"not null"` // cover_art|audio_file
	FileSizeBytes     int64     `gorm:"not null"`
	MimeType          string    `gorm:"not null"`
	UploadedAt        time.Time
	Checksum          string    `gorm:"not null"` // SHA-256 hex
}

func (MediaFile) TableName() string { return "media_files" }

const (
	MediaTypeCoverArt  = "cover_art"
	MediaTypeAudioFile = "audio_file"
)

const (
	PluginFormatVST2Instrument = "vst2-instrument"
	PluginFormatVST2AudioFX    = "vst2-audiofx"
	PluginFormatVST3Instrument = "vst3-instrument"
	PluginFormatVST3AudioFX    = "vst3-audiofx"
)
