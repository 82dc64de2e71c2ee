//go:build windows

package capture

func defaultCommand() []string {
	return []string{"ffmpeg.exe", "-hide_banner", "-loglevel", "error", "-y", "-f", "dshow", "-i", "audio=" + PlaceholderDevice, PlaceholderOutput}
}
