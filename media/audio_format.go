package media

import (
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// defaultAudioClockRate is the Opus clock rate used for the mandatory
// audio channel (spec §4.4: "one audio send+receive channel (always
// present)"), grounded on av/audio/codec.go's Opus defaults.
const defaultAudioClockRate = 48000

// bandwidthForSampleRate maps a sample rate to the Opus bandwidth
// classification reported alongside the audio channel for quality
// logging, grounded on av/audio/codec.go's GetBandwidthFromSampleRate.
func bandwidthForSampleRate(sampleRate uint32, logger *logrus.Entry) opus.Bandwidth {
	switch sampleRate {
	case 8000:
		return opus.BandwidthNarrowband
	case 12000:
		return opus.BandwidthMediumband
	case 16000:
		return opus.BandwidthWideband
	case 24000:
		return opus.BandwidthSuperwideband
	case 48000:
		return opus.BandwidthFullband
	default:
		logger.WithField("sample_rate", sampleRate).Warn("unsupported sample rate, defaulting to fullband")
		return opus.BandwidthFullband
	}
}
