package mainutil

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
)

// sdNotify sends a state change to the service manager, if $NOTIFY_SOCKET
// names one.  See sd_notify(3).
func sdNotify(payload string) {
	sent, err := daemon.SdNotify(false, payload)
	if err != nil {
		log.Logger.Warn().
			Str("payload", payload).
			Err(err).
			Msg("sdNotify: failed")
		return
	}

	if sent {
		log.Logger.Trace().
			Str("payload", payload).
			Msg("sdNotify: success")
	}
}
