package consolidate

import (
	"fmt"
	"io"
	"os"
)

const (
	updatingManifestTemplateConstant = "Updating %s\n"
	manifestFailureTemplateConstant  = "Error processing %s: %v\n"
)

// Reporter emits the per-manifest console notices.
type Reporter interface {
	ManifestUpdating(manifestPath string)
	ManifestFailed(manifestPath string, failure error)
}

type writerReporter struct {
	writer io.Writer
}

// NewWriterReporter constructs a Reporter that writes to the provided io.Writer.
// A nil writer falls back to standard output.
func NewWriterReporter(writer io.Writer) Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return writerReporter{writer: writer}
}

func (reporter writerReporter) ManifestUpdating(manifestPath string) {
	fmt.Fprintf(reporter.writer, updatingManifestTemplateConstant, manifestPath)
}

func (reporter writerReporter) ManifestFailed(manifestPath string, failure error) {
	fmt.Fprintf(reporter.writer, manifestFailureTemplateConstant, manifestPath, failure)
}
