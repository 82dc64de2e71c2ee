package server

import (
	"time"

	"github.com/blaubaer/onair/pkg/common"
)

func NewConfiguration() Configuration {
	return Configuration{
		":8080",
		64,
		30 * time.Second,
		10 * time.Second,
		20 * time.Second,
	}
}

type Configuration struct {
	Listen string `yaml:"listen,omitempty"`

	QueueSize     int           `yaml:"queueSize,omitempty"`
	AttachTimeout time.Duration `yaml:"attachTimeout,omitempty"`
	WriteTimeout  time.Duration `yaml:"writeTimeout,omitempty"`
	PingInterval  time.Duration `yaml:"pingInterval,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("server.listen", "Address the coordinator listens on.").
		Envar("OA_SERVER_LISTEN").
		StringVar(&this.Listen)
	using.Flag("server.queueSize", "How many events are buffered per subscriber before it gets dropped.").
		Envar("OA_SERVER_QUEUE_SIZE").
		IntVar(&this.QueueSize)
	using.Flag("server.attachTimeout", "How long a subscription waits for its stream before it gets discarded.").
		Envar("OA_SERVER_ATTACH_TIMEOUT").
		DurationVar(&this.AttachTimeout)
	using.Flag("server.writeTimeout", "Timeout of a single write to a stream.").
		Envar("OA_SERVER_WRITE_TIMEOUT").
		DurationVar(&this.WriteTimeout)
	using.Flag("server.pingInterval", "How often streams are pinged to detect dead peers.").
		Envar("OA_SERVER_PING_INTERVAL").
		DurationVar(&this.PingInterval)
}
