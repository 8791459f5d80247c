package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultExtractorCommand is the executable CommandExtractor runs by default.
const DefaultExtractorCommand = "pdftotext"

// CommandExtractor extracts PDF text by running an external converter that
// writes plain text to stdout, such as poppler's pdftotext.
type CommandExtractor struct {
	// Path is the executable. Default DefaultExtractorCommand.
	Path string
	// Args precede the input path. Default {"-layout", "-enc", "UTF-8"}.
	Args []string
}

var _ TextExtractor = (*CommandExtractor)(nil)

// ExtractText implements TextExtractor. The file path is followed by "-" so
// the text is written to stdout.
func (e *CommandExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	name := e.Path
	if name == "" {
		name = DefaultExtractorCommand
	}
	args := e.Args
	if args == nil {
		args = []string{"-layout", "-enc", "UTF-8"}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, append(append([]string{}, args...), path, "-")...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}
