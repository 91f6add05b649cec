package transport

import (
	"time"

	"github.com/rs/zerolog"

	"gbxremote/codec"
	"gbxremote/fault"
	"gbxremote/logx"
	"gbxremote/protocol"
)

// Options tunes a ClientTransport. Zero fields take the defaults below.
type Options struct {
	ConnectTimeout  time.Duration // Dial + handshake budget (default 5s)
	ReadTimeout     time.Duration // Per-frame read timeout (default 5s)
	WriteTimeout    time.Duration // Per-frame write timeout (default 5s)
	MaxRequestSize  int           // Whole request frame, header included (default 2 MiB)
	MaxResponseSize int           // Incoming payload (default 4 MiB)

	// DrainWait is how long GetCallbacks waits for a frame to be readable.
	// It only has to cover data already sitting in the socket buffer.
	DrainWait time.Duration
	// MaxDrainFrames caps frames read by one GetCallbacks so a flooding
	// server cannot pin the caller.
	MaxDrainFrames int

	Codec  codec.Codec
	Faults *fault.Table
	Logger *zerolog.Logger
}

const (
	defaultTimeout        = 5 * time.Second
	defaultDrainWait      = time.Millisecond
	defaultMaxDrainFrames = 256
)

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultTimeout
	}
	if o.MaxRequestSize <= 0 {
		o.MaxRequestSize = protocol.DefaultMaxRequestSize
	}
	if o.MaxResponseSize <= 0 {
		o.MaxResponseSize = protocol.DefaultMaxResponseSize
	}
	if o.DrainWait <= 0 {
		o.DrainWait = defaultDrainWait
	}
	if o.MaxDrainFrames <= 0 {
		o.MaxDrainFrames = defaultMaxDrainFrames
	}
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	if o.Faults == nil {
		o.Faults = fault.DefaultTable
	}
	if o.Logger == nil {
		l := logx.Log
		o.Logger = &l
	}
	return o
}
