package entity

// ProjectStatus summarises the live state of one bridged project.
type ProjectStatus struct {
	Root          string   `json:"root"`
	Session       string   `json:"session,omitempty"`
	State         string   `json:"state"`
	Indexing      []string `json:"indexing,omitempty"`
	WatchDegraded bool     `json:"watch_degraded"`
	OpenDocuments int      `json:"open_documents"`
}
