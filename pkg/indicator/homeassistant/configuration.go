package homeassistant

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/blaubaer/onair/pkg/common"
)

func NewConfiguration() Configuration {
	return Configuration{
		"",
		"",
		fmt.Sprintf("input_boolean.%s_on_air", hostId),
		time.Minute,
		30 * time.Second,
	}
}

var forbiddenEntityIdChars = regexp.MustCompile("[^a-z0-9_]")

func normalizeEntityIdPart(id string) string {
	id = strings.ToLower(id)
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, "-", "_")
	id = strings.ReplaceAll(id, ".", "_")
	id = forbiddenEntityIdChars.ReplaceAllString(id, "_")
	return id
}

var hostId = func() string {
	if result, err := os.Hostname(); err == nil {
		return normalizeEntityIdPart(result)
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("cannot generate entity id: %w", err))
	}
	return hex.EncodeToString(buf)
}()

type Configuration struct {
	Server   string `yaml:"server,omitempty"`
	Token    string `yaml:"token,omitempty"`
	EntityId string `yaml:"entityId"`

	DeadZoneInterval time.Duration `yaml:"deadZoneInterval,omitempty"`
	RequestTimeout   time.Duration `yaml:"requestTimeout,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("indicator.homeAssistant.server", "URL of the Home Assistant instance.").
		Envar("OA_INDICATOR_HOME_ASSISTANT_SERVER").
		StringVar(&this.Server)
	using.Flag("indicator.homeAssistant.token", "Long lived access token of the Home Assistant instance.").
		Envar("OA_INDICATOR_HOME_ASSISTANT_TOKEN").
		StringVar(&this.Token)
	using.Flag("indicator.homeAssistant.entityId", "Entity which reflects whether we are on air.").
		Envar("OA_INDICATOR_HOME_ASSISTANT_ENTITY_ID").
		StringVar(&this.EntityId)
	using.Flag("indicator.homeAssistant.deadZoneInterval", "How long the last written state is trusted before Home Assistant is asked again.").
		Envar("OA_INDICATOR_HOME_ASSISTANT_DEAD_ZONE_INTERVAL").
		DurationVar(&this.DeadZoneInterval)
	using.Flag("indicator.homeAssistant.requestTimeout", "Timeout of a single request to Home Assistant.").
		Envar("OA_INDICATOR_HOME_ASSISTANT_REQUEST_TIMEOUT").
		DurationVar(&this.RequestTimeout)
}
