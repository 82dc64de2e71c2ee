package audio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parsePCM reads the capture devices from the format of /proc/asound/pcm:
//
//	00-00: ALC257 Analog : ALC257 Analog : playback 1 : capture 1
//
// The resulting ids can be used as ALSA hardware device names.
func parsePCM(r io.Reader) (result Devices, _ error) {
	s := bufio.NewScanner(r)
	var index uint32
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("illegal pcm line: %q", line)
		}

		capture := false
		for _, p := range parts[2:] {
			if strings.HasPrefix(strings.TrimSpace(p), "capture") {
				capture = true
			}
		}
		if !capture {
			continue
		}

		card, dev, ok := strings.Cut(strings.TrimSpace(parts[0]), "-")
		if !ok {
			return nil, fmt.Errorf("illegal pcm address in line: %q", line)
		}
		cardN, err := strconv.Atoi(card)
		if err != nil {
			return nil, fmt.Errorf("illegal pcm card in line %q: %w", line, err)
		}
		devN, err := strconv.Atoi(dev)
		if err != nil {
			return nil, fmt.Errorf("illegal pcm device in line %q: %w", line, err)
		}

		result = append(result, Device{
			ID:    fmt.Sprintf("hw:%d,%d", cardN, devN),
			Name:  strings.TrimSpace(parts[1]),
			Index: index,
		})
		index++
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("cannot read pcm devices: %w", err)
	}
	return
}
