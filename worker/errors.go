package worker

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrObjectRepositoryRequired is returned when an object repository is not provided.
	ErrObjectRepositoryRequired = errors.New("object repository required")

	// ErrSummarizerRequired is returned when a summarizer is not provided.
	ErrSummarizerRequired = errors.New("summarizer required")

	// ErrTextExtractorRequired is returned when a PDF text extractor is not provided.
	ErrTextExtractorRequired = errors.New("text extractor required")

	// ErrStorageDirRequired is returned when no directory is given for stored files.
	ErrStorageDirRequired = errors.New("storage directory required")

	// ErrInvalidURL is returned for sources that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedContent is returned when a URL serves something other than HTML or text.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrContentTooLarge is returned when a response body exceeds the configured limit.
	ErrContentTooLarge = errors.New("content too large")

	// ErrInvalidPDF is returned when a file cannot be read as a PDF.
	ErrInvalidPDF = errors.New("invalid pdf")

	// ErrNoContent is returned when parsing leaves too little text to index.
	ErrNoContent = errors.New("no usable text content")

	// ErrObjectMoved is returned when an object left the fetched state while
	// its job still held it.
	ErrObjectMoved = errors.New("object no longer fetched")
)
