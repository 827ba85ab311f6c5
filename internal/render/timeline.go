package render

// ClipSource is one ordered video clip to lay on the timeline.
type ClipSource struct {
	URL             string
	DurationSeconds float64
}

// Transition names the effect applied at a clip boundary.
type Transition struct {
	In  string `json:"in,omitempty"`
	Out string `json:"out,omitempty"`
}

// Clip is one placed element on a track.
type Clip struct {
	Src        string      `json:"src"`
	Start      float64     `json:"start"`
	Length     float64     `json:"length"`
	Transition *Transition `json:"transition,omitempty"`
	Volume     float64     `json:"volume,omitempty"`
	Kind       string      `json:"kind,omitempty"`
}

// Track is an ordered set of clips; track 0 is video, track 1 the optional audio bed.
type Track struct {
	Clips []Clip `json:"clips"`
}

// Timeline is the composition submitted to the render vendor.
type Timeline struct {
	Tracks []Track `json:"tracks"`
}

// Output describes the requested encode.
type Output struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// audioBedVolume keeps the narration under the clips' own audio.
const audioBedVolume = 0.3

type resolution struct {
	width  int
	height int
}

var resolutionPresets = map[string]resolution{
	"preview": {512, 288},
	"mobile":  {640, 360},
	"sd":      {1024, 576},
	"hd":      {1280, 720},
	"1080":    {1920, 1080},
}

// OutputForPreset resolves a preset name to concrete dimensions. Unknown
// presets fall back to hd rather than failing.
func OutputForPreset(preset string) Output {
	res, ok := resolutionPresets[preset]
	if !ok {
		res = resolutionPresets["hd"]
	}
	return Output{Format: "mp4", Width: res.width, Height: res.height}
}

// BuildTimeline lays clips sequentially on the video track: clip i starts at
// the sum of the durations of clips 0..i-1. The first clip always fades in and
// the last always fades out, whatever transition was requested; the requested
// transition applies between interior clips. The audio track, if present,
// starts at 0, stretches to the end of the composition and is played quietly
// under the clips.
func BuildTimeline(clips []ClipSource, audioURL string, transition string) Timeline {
	if transition == "" {
		transition = "fade"
	}
	videoTrack := Track{Clips: make([]Clip, 0, len(clips))}
	var cursor float64
	last := len(clips) - 1
	for i, src := range clips {
		tr := &Transition{In: transition, Out: transition}
		if i == 0 {
			tr.In = "fade"
		}
		if i == last {
			tr.Out = "fade"
		}
		videoTrack.Clips = append(videoTrack.Clips, Clip{
			Src:        src.URL,
			Start:      cursor,
			Length:     src.DurationSeconds,
			Transition: tr,
		})
		cursor += src.DurationSeconds
	}

	timeline := Timeline{Tracks: []Track{videoTrack}}
	if audioURL != "" {
		timeline.Tracks = append(timeline.Tracks, Track{Clips: []Clip{{
			Src:    audioURL,
			Start:  0,
			Length: cursor,
			Volume: audioBedVolume,
			Kind:   "audio",
		}}})
	}
	return timeline
}
