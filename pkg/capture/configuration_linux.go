//go:build linux

package capture

func defaultCommand() []string {
	return []string{"ffmpeg", "-hide_banner", "-loglevel", "error", "-y", "-f", "alsa", "-i", PlaceholderChannel, PlaceholderOutput}
}
