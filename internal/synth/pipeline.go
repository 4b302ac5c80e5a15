package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/pacing"
	"github.com/cantolabs/canto-core/internal/script"
	"github.com/cantolabs/canto-core/internal/timing"
)

// Options tune one pipeline run.
type Options struct {
	VoiceID        string
	Language       string
	BaseRate       float64
	DefaultPauseMS int64
	FPS            int
}

// Segment is one synthesized script segment, keyed by scene id.
type Segment struct {
	SceneID     string
	Audio       audio.Data
	DurationMS  int64
	WordTimings []timing.WordTiming
}

// RunResult is the full outcome of a pipeline run: the assembled track, the
// per-segment audio, and the timing map the video renderer consumes.
type RunResult struct {
	Audio    audio.Data
	Segments []Segment
	Timing   timing.Map
}

// Pipeline turns a script into a spoken track: pacing, concurrent synthesis,
// ordered assembly, and timing derivation. It is state-free; one instance
// serves concurrent runs.
type Pipeline struct {
	synth   Synthesizer
	planner pacing.Planner
	calc    *timing.Calculator
	logger  *slog.Logger
}

func NewPipeline(synth Synthesizer, planner pacing.Planner, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		synth:   synth,
		planner: planner,
		calc:    timing.NewCalculator(),
		logger:  logger.With(slog.String("component", "synth-pipeline")),
	}
}

// SetBreathingRoom overrides the timing calculator's scene padding factor.
// Values below 1 are ignored.
func (p *Pipeline) SetBreathingRoom(factor float64) {
	if factor >= 1 {
		p.calc.BreathingRoom = factor
	}
}

// RunBrief builds the script from a content brief and runs the pipeline.
func (p *Pipeline) RunBrief(ctx context.Context, brief script.Brief, opts Options) (RunResult, error) {
	return p.Run(ctx, script.FromBrief(brief), opts)
}

// RunScenePlan adapts an external scene plan and runs the pipeline.
func (p *Pipeline) RunScenePlan(ctx context.Context, scenes []script.Scene, opts Options) (RunResult, error) {
	s, err := script.FromScenePlan(scenes)
	if err != nil {
		return RunResult{}, err
	}
	return p.Run(ctx, s, opts)
}

// Run executes the pipeline over an already-built script.
func (p *Pipeline) Run(ctx context.Context, s script.Script, opts Options) (RunResult, error) {
	if len(s.Segments) == 0 {
		return RunResult{}, fmt.Errorf("script has no segments")
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}

	directives, err := p.planner.Plan(ctx, s, opts.BaseRate)
	if err != nil {
		// planners fall back internally; a hard error here is a bug upstream
		return RunResult{}, fmt.Errorf("plan pacing: %w", err)
	}

	segments, err := p.synthesizeAll(ctx, s, directives, opts)
	if err != nil {
		return RunResult{}, err
	}

	track, err := p.assemble(segments, directives, opts.DefaultPauseMS)
	if err != nil {
		return RunResult{}, err
	}

	timed := make([]timing.TimedSegment, 0, len(segments))
	for _, seg := range segments {
		timed = append(timed, timing.TimedSegment{SceneID: seg.SceneID, DurationMS: seg.DurationMS, WordTimings: seg.WordTimings})
	}

	return RunResult{
		Audio:    track,
		Segments: segments,
		Timing:   p.calc.Build(timed, opts.FPS),
	}, nil
}

// synthesizeAll fans every segment out to the provider concurrently and
// collects results in script order. Any failure discards all partial audio.
func (p *Pipeline) synthesizeAll(ctx context.Context, s script.Script, directives map[string]pacing.Directive, opts Options) ([]Segment, error) {
	results := make([]Segment, len(s.Segments))
	errs := make([]error, len(s.Segments))

	var wg sync.WaitGroup
	for i, seg := range s.Segments {
		wg.Add(1)
		go func(i int, seg script.Segment) {
			defer wg.Done()
			d := directives[seg.SceneID]
			res, err := p.synth.Synthesize(ctx, Request{
				Text:     seg.Text,
				VoiceID:  opts.VoiceID,
				Language: opts.Language,
				Rate:     d.Rate,
				Emphasis: string(d.Emphasis),
				Style:    d.Tone,
			})
			if err != nil {
				errs[i] = fmt.Errorf("synthesize scene %q: %w", seg.SceneID, err)
				return
			}
			results[i] = Segment{
				SceneID:     seg.SceneID,
				Audio:       res.Audio,
				DurationMS:  res.Audio.DurationMS,
				WordTimings: res.WordTimings,
			}
		}(i, seg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// assemble concatenates segments in script order with the directed silences.
// Trailing silence is suppressed after the final segment.
func (p *Pipeline) assemble(segments []Segment, directives map[string]pacing.Directive, defaultPauseMS int64) (audio.Data, error) {
	var parts []audio.Data
	for i, seg := range segments {
		d := directives[seg.SceneID]
		if d.LeadSilenceMS > 0 {
			parts = append(parts, audio.Silence(d.LeadSilenceMS, seg.Audio.Format, seg.Audio.SampleRate, seg.Audio.Channels))
		}
		parts = append(parts, seg.Audio)
		if i == len(segments)-1 {
			continue
		}
		trail := defaultPauseMS
		if d.HasTrailSilence {
			trail = d.TrailSilenceMS
		}
		if trail > 0 {
			parts = append(parts, audio.Silence(trail, seg.Audio.Format, seg.Audio.SampleRate, seg.Audio.Channels))
		}
	}
	track, err := audio.Concatenate(parts...)
	if err != nil {
		return audio.Data{}, fmt.Errorf("assemble track: %w", err)
	}
	return track, nil
}
