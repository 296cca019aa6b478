package metainfo

import "errors"

// MetadataError is returned when a torrent file, info dict or metadata value is malformed.
type MetadataError struct {
	Err error
}

func (e *MetadataError) Error() string {
	return "metadata error: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *MetadataError) Unwrap() error {
	return e.Err
}

func newMetadataError(err error) error {
	if err == nil {
		return nil
	}
	var me *MetadataError
	if errors.As(err, &me) {
		return err
	}
	return &MetadataError{Err: err}
}
