package adapter

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
)

// Opener launches share URLs with the platform's default handler
type Opener struct {
	shareBase string
	logger    *slog.Logger
}

// NewOpener creates an opener that builds share links off shareBase
// (typically the public site URL, not the API URL).
func NewOpener(shareBase string, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{shareBase: shareBase, logger: logger}
}

// ShareURL returns the public link for a story
func (o *Opener) ShareURL(storyID string) string {
	return fmt.Sprintf("%s/stories/%s", o.shareBase, url.PathEscape(storyID))
}

// OpenStory opens a story's share link in the default browser
func (o *Opener) OpenStory(storyID string) error {
	target := o.ShareURL(storyID)
	o.logger.Info("opening share link", "url", target)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	// Detach: the browser outlives us and we never wait on it
	go func() { _ = cmd.Wait() }()
	return nil
}
