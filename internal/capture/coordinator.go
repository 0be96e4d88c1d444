package capture

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/user/discord-voicebot/internal/stt"
)

// Recorder captures a fixed number of seconds from the microphone and returns
// the path of the written WAV file.
type Recorder interface {
	Record(seconds int) (string, error)
}

type job struct {
	id      uuid.UUID
	ctx     context.Context
	seconds int
	result  chan result
}

type result struct {
	text string
	err  error
}

// Coordinator serializes capture work on a single dedicated worker so gateway
// handlers are never blocked by microphone or network I/O. Capacity is one:
// the microphone and the output file path are shared, so a second request
// queues behind the first.
type Coordinator struct {
	recorder    Recorder
	transcriber stt.Transcriber

	jobs     chan job
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mutex    sync.Mutex
}

func NewCoordinator(recorder Recorder, transcriber stt.Transcriber) *Coordinator {
	return &Coordinator{
		recorder:    recorder,
		transcriber: transcriber,
		jobs:        make(chan job),
		stopChan:    make(chan struct{}),
	}
}

func (c *Coordinator) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.started {
		return fmt.Errorf("coordinator already started")
	}
	c.started = true

	c.wg.Add(1)
	go c.worker()

	log.Info().Msg("Started capture worker")
	return nil
}

func (c *Coordinator) worker() {
	defer c.wg.Done()

	for {
		select {
		case j := <-c.jobs:
			j.result <- c.run(j)
		case <-c.stopChan:
			return
		}
	}
}

func (c *Coordinator) run(j job) result {
	log.Info().
		Str("capture_id", j.id.String()).
		Int("seconds", j.seconds).
		Msg("Starting capture")

	path, err := c.recorder.Record(j.seconds)
	if err != nil {
		return result{err: err}
	}

	wav, err := os.ReadFile(path)
	if err != nil {
		return result{err: fmt.Errorf("failed to read capture file: %w", err)}
	}

	text, err := c.transcriber.Transcribe(j.ctx, wav)
	if err != nil {
		return result{err: err}
	}

	log.Info().
		Str("capture_id", j.id.String()).
		Int("wav_bytes", len(wav)).
		Str("text", text).
		Msg("Capture transcribed")

	return result{text: text}
}

// CaptureAndTranscribe records seconds of audio and returns its transcription.
// The calling goroutine blocks until the capture completes; concurrent calls
// are executed one at a time in arrival order.
func (c *Coordinator) CaptureAndTranscribe(ctx context.Context, seconds int) (string, error) {
	j := job{
		id:      uuid.New(),
		ctx:     ctx,
		seconds: seconds,
		result:  make(chan result, 1),
	}

	select {
	case c.jobs <- j:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.stopChan:
		return "", fmt.Errorf("coordinator stopped")
	}

	select {
	case r := <-j.result:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.started {
		return
	}

	close(c.stopChan)
	c.wg.Wait()
	c.started = false

	log.Info().Msg("Stopped capture worker")
}
