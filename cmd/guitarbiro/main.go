// Command guitarbiro listens to a guitar plugged into the sound card and
// shows, in real time, where on the fretboard the note being played can be
// fingered.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PieroV/guitarbiro/internal/audio"
	"github.com/PieroV/guitarbiro/internal/guitar"
	"github.com/PieroV/guitarbiro/internal/pitch"
	"github.com/PieroV/guitarbiro/internal/ui"
)

var (
	flagRate        int
	flagDevice      int
	flagListDevices bool
	flagFrets       int
)

var rootCmd = &cobra.Command{
	Use:   "guitarbiro",
	Short: "Show where the note you are playing sits on the fretboard",
	RunE:  run,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().IntVarP(&flagRate, "rate", "r", 0, "sample rate to request in Hz (0 picks a standard rate)")
	rootCmd.Flags().IntVarP(&flagDevice, "device", "d", -1, "input device index (see --list-devices)")
	rootCmd.Flags().BoolVarP(&flagListDevices, "list-devices", "l", false, "list input devices and exit")
	rootCmd.Flags().IntVar(&flagFrets, "frets", guitar.Frets, "number of frets on the neck")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagListDevices {
		devices, err := audio.Devices()
		if err != nil {
			return err
		}
		for _, line := range devices {
			fmt.Println(line)
		}
		return nil
	}

	capturer, err := audio.NewCapturer(audio.CaptureConfig{
		Device: flagDevice,
		Rate:   flagRate,
	})
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	log.Printf("Recording at %d Hz", capturer.SampleRate())

	program := tea.NewProgram(
		ui.NewModel(guitar.StandardTuning, flagFrets),
		tea.WithAltScreen(),
	)

	detector, err := pitch.NewDetector(pitch.Config{
		SampleRate: capturer.SampleRate(),
		Frets:      flagFrets,
	}, &uiConsumer{program: program})
	if err != nil {
		return err
	}

	if err := capturer.Start(); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	defer capturer.Stop()

	session := audio.NewSession(capturer, detector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		return err
	})
	g.Go(func() error {
		err := session.Run(ctx)
		// A session failure must take the UI down with it.
		program.Quit()
		return err
	})

	return g.Wait()
}

// uiConsumer forwards detector events to the Bubble Tea program. Send is
// safe to call from the analysis goroutine; it waits until the program's
// event loop accepts the message, and returns at once after the program
// has exited.
type uiConsumer struct {
	program *tea.Program
}

func (c *uiConsumer) NoteOn(note guitar.Semitone, frets []guitar.Semitone) {
	c.program.Send(ui.NoteMsg{
		Note:      note,
		Frets:     frets,
		Frequency: note.Frequency(),
	})
}

func (c *uiConsumer) NoteOff() {
	c.program.Send(ui.SilenceMsg{})
}
