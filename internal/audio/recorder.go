package audio

import (
	"errors"
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// Fixed capture format, matching the wit.ai dictation contract.
const (
	SampleRate = 44100
	Channels   = 1 // Mono
	BitDepth   = 16

	// Frames read from the device per stream read.
	chunkFrames = 1024
)

// ErrDevice indicates the default input device could not be opened or read.
var ErrDevice = errors.New("audio input device unavailable")

// Recorder captures fixed-duration mono PCM from the default input device and
// writes it to a single WAV file, overwriting any previous capture.
//
// Record blocks for the full capture duration. It must never be called from a
// gateway event handler directly; the capture coordinator owns that offload.
type Recorder struct {
	path string
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Record captures seconds of audio and returns the path of the written WAV file.
// The file only appears once every frame has been captured.
func (r *Recorder) Record(seconds int) (string, error) {
	if seconds <= 0 {
		return "", fmt.Errorf("record duration must be positive, got %d", seconds)
	}

	if err := portaudio.Initialize(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDevice, err)
	}
	defer portaudio.Terminate()

	in := make([]int16, chunkFrames)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), chunkFrames, in)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDevice, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDevice, err)
	}

	log.Info().Int("seconds", seconds).Msg("Listening...")

	// Whole chunks only, so the capture covers at least the requested duration.
	reads := (seconds*SampleRate + chunkFrames - 1) / chunkFrames
	samples := make([]int, 0, reads*chunkFrames)

	for i := 0; i < reads; i++ {
		if err := stream.Read(); err != nil {
			stream.Stop()
			return "", fmt.Errorf("%w: %v", ErrDevice, err)
		}
		for _, s := range in {
			samples = append(samples, int(s))
		}
	}

	if err := stream.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop input stream")
	}

	log.Info().Int("samples", len(samples)).Msg("Finished recording")

	if err := writeWAV(r.path, samples); err != nil {
		return "", err
	}

	return r.path, nil
}

// writeWAV serializes captured samples into a mono 16-bit WAV container.
func writeWAV(path string, samples []int) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	enc := wav.NewEncoder(out, SampleRate, BitDepth, Channels, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(buf); err != nil {
		out.Close()
		return fmt.Errorf("failed to write wav data: %w", err)
	}

	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}

	return out.Close()
}
