package session

// A Database persists DownloadPersistentState across sessions.
type Database interface {
	ListDownloads() ([]DownloadPersistentState, error)
	WriteDownload(*DownloadPersistentState) error
	DeleteDownload(*DownloadPersistentState) error
}

// NilDatabase remembers nothing.
type NilDatabase struct{}

func (d NilDatabase) ListDownloads() ([]DownloadPersistentState, error) {
	return nil, nil
}

func (d NilDatabase) WriteDownload(_ *DownloadPersistentState) error {
	return nil
}

func (d NilDatabase) DeleteDownload(_ *DownloadPersistentState) error {
	return nil
}
