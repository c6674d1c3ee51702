package event

// ResourcesResolvedData is the data for resource.resolved events.
type ResourcesResolvedData struct {
	Agent   string `json:"agent"`
	Entries int    `json:"entries"`
	Cached  bool   `json:"cached"`
}

// ResourcesInvalidatedData is the data for resource.invalidated events.
type ResourcesInvalidatedData struct {
	Agent   string `json:"agent"`
	Key     string `json:"key"`
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Op      string `json:"op"`
}

// CacheClearedData is the data for resource.cache.cleared events.
type CacheClearedData struct {
	Removed int `json:"removed"`
}

// WatchData is the data for agent.watch.* events.
type WatchData struct {
	ID       string `json:"id"`
	Agent    string `json:"agent"`
	Patterns int    `json:"patterns"`
}
