//go:build !linux && !windows

package capture

func defaultCommand() []string {
	return []string{"ffmpeg", "-hide_banner", "-loglevel", "error", "-y", "-f", "avfoundation", "-i", ":" + PlaceholderChannel, PlaceholderOutput}
}
