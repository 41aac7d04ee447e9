package alarm

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/cyclopcam/logs"
)

// AudioSink maps alarm signals onto a sound player sub-process.
// On alarm-on we spawn the player looping over a fixed sound asset,
// and on alarm-off we kill it. The player command is configurable
// because there is no one audio tool present on every box
// (aplay has no loop flag, so the default is ffplay).
type AudioSink struct {
	log       logs.Log
	soundFile string
	command   string
	args      []string

	lock sync.Mutex
	cmd  *exec.Cmd
}

// DefaultAudioCommand loops the sound until killed, with no video window.
const DefaultAudioCommand = "ffplay"

var DefaultAudioArgs = []string{"-nodisp", "-loglevel", "quiet", "-loop", "0"}

func NewAudioSink(log logs.Log, soundFile, command string, args []string) *AudioSink {
	if command == "" {
		command = DefaultAudioCommand
		args = append([]string{}, DefaultAudioArgs...)
	}
	return &AudioSink{
		log:       log,
		soundFile: soundFile,
		command:   command,
		args:      args,
	}
}

func (s *AudioSink) Name() string { return "audio:" + s.soundFile }

func (s *AudioSink) Deliver(ctx context.Context, sig *Signal) error {
	if sig == nil {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	switch sig.Kind {
	case SignalOn:
		if s.cmd != nil {
			// Already playing. A second On without an Off in between would be
			// a bug in the state machine, so complain.
			s.log.Warnf("AudioSink received alarm-on while already playing")
			return nil
		}
		args := append(append([]string{}, s.args...), s.soundFile)
		cmd := exec.Command(s.command, args...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %v: %w", s.command, err)
		}
		s.cmd = cmd
		// Reap the process when it exits, so a finite sound file or a killed
		// player doesn't leave a zombie behind.
		go cmd.Wait()
		s.log.Infof("Alarm sound started (%v %v)", s.command, s.soundFile)
	case SignalOff:
		if s.cmd == nil {
			return nil
		}
		if err := s.cmd.Process.Kill(); err != nil {
			s.log.Warnf("Failed to stop alarm sound: %v", err)
		}
		s.cmd = nil
		s.log.Infof("Alarm sound stopped")
	}
	return nil
}

func (s *AudioSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cmd != nil {
		err := s.cmd.Process.Kill()
		s.cmd = nil
		return err
	}
	return nil
}
