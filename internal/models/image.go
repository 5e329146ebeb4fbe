package models

type ImageType string

const (
	ImageTypeRaw       ImageType = "raw"
	ImageTypeProcessed ImageType = "processed"
)

// GeneratedImage is derived at query time from a stored file and its decoded name.
type GeneratedImage struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	PromptID     string    `json:"prompt_id"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	CreatedAt    string    `json:"created_at"`
	Extension    string    `json:"extension"`
	SizeMB       float64   `json:"size_mb"`
	Status       string    `json:"status"`
	Type         ImageType `json:"type"`
}

type ImageStats struct {
	TotalImages int            `json:"total_images"`
	TotalSizeMB float64        `json:"total_size_mb"`
	ByProvider  map[string]int `json:"by_provider"`
	ByModel     map[string]int `json:"by_model"`
	ByPrompt    map[string]int `json:"by_prompt"`
	ByDate      map[string]int `json:"by_date"`
}

type DeleteResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	TrashLocation string   `json:"trash_location"`
	Moved         []string `json:"moved"`
}

type ArchiveResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ArchivedCount int    `json:"archived_count"`
	ArchivePath   string `json:"archive_path"`
}
