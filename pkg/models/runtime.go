package models

// RuntimeInfo describes the backend runtime settings that clients may need.
type RuntimeInfo struct {
	HTTPBaseURL string `json:"http_base_url"`
	WSBaseURL   string `json:"ws_base_url"`
	Port        int    `json:"port"`
	Storage     string `json:"storage"`
	HomeDir     string `json:"home_dir,omitempty"`
}
